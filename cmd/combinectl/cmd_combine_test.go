package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCmdCombineEndToEnd(t *testing.T) {
	var dir = t.TempDir()

	var bindingsPath = filepath.Join(dir, "bindings.json")
	var bindingsJSON = `[{
		"index": 0,
		"keyPointers": ["/key"],
		"schema": {
			"type": "object",
			"properties": {
				"key": {"type": "string"},
				"n": {"type": "integer", "reduce": "sum"}
			}
		}
	}]`
	require.NoError(t, os.WriteFile(bindingsPath, []byte(bindingsJSON), 0644))

	var inputPath = filepath.Join(dir, "input.ndjson")
	var lines = []string{
		`{"binding":0,"doc":{"key":"a","n":1}}`,
		`{"binding":0,"doc":{"key":"a","n":2}}`,
		`{"binding":0,"doc":{"key":"b","n":5}}`,
	}
	var inputBuf bytes.Buffer
	for _, l := range lines {
		inputBuf.WriteString(l)
		inputBuf.WriteByte('\n')
	}
	require.NoError(t, os.WriteFile(inputPath, inputBuf.Bytes(), 0644))

	var cmd = cmdCombine{
		Bindings:         bindingsPath,
		Input:            inputPath,
		SpillThresholdMB: 64,
		ChunkTargetKB:    1024,
	}

	var oldStdout = os.Stdout
	var r, w, perr = os.Pipe()
	require.NoError(t, perr)
	os.Stdout = w
	defer func() { os.Stdout = oldStdout }()

	var execErr = cmd.Execute(nil)
	require.NoError(t, w.Close())
	os.Stdout = oldStdout
	require.NoError(t, execErr)

	var out bytes.Buffer
	_, err := out.ReadFrom(r)
	require.NoError(t, err)

	var docs []map[string]json.RawMessage
	for _, line := range bytes.Split(bytes.TrimSpace(out.Bytes()), []byte("\n")) {
		if len(line) == 0 {
			continue
		}
		var m map[string]json.RawMessage
		require.NoError(t, json.Unmarshal(line, &m))
		docs = append(docs, m)
	}
	require.Len(t, docs, 2)
}
