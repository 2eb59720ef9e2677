package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/estuary/flow-combine/go/combiner"
	"github.com/fatih/color"
	log "github.com/sirupsen/logrus"
)

var errColor = color.New(color.FgRed).SprintFunc()
var infoColor = color.New(color.FgGreen).SprintFunc()

type cmdCombine struct {
	Bindings         string `long:"bindings" required:"true" description:"Path to a JSON file holding an array of binding specs"`
	Input            string `long:"input" required:"true" description:"Path to a NDJSON file of documents to add. Each line must carry a \"binding\" field naming the target binding's index"`
	SpillThresholdMB int    `long:"spill-threshold-mb" default:"64" description:"Arena occupancy, in MiB, past which the session spills to a temp file"`
	ChunkTargetKB    int    `long:"chunk-target-kb" default:"1024" description:"Approximate size, in KiB, of one spill chunk"`
	Verbose          bool   `long:"verbose" description:"Log at Debug level"`
}

// inputLine is the envelope format read from --input: routing metadata
// alongside the actual document to add, keeping "binding"/"front" out
// of the document bytes handed to the Combiner.
type inputLine struct {
	Binding uint32          `json:"binding"`
	Front   bool            `json:"front"`
	Doc     json.RawMessage `json:"doc"`
}

func (cmd cmdCombine) Execute(_ []string) error {
	if cmd.Verbose {
		log.SetLevel(log.DebugLevel)
	}

	var bindingsJSON, err = os.ReadFile(cmd.Bindings)
	if err != nil {
		return fmt.Errorf("reading bindings file: %w", err)
	}
	var bindings []combiner.Binding
	if err = json.Unmarshal(bindingsJSON, &bindings); err != nil {
		return fmt.Errorf("parsing bindings file: %w", err)
	}

	var spillFile *os.File
	if spillFile, err = os.CreateTemp("", "combinectl-spill-*"); err != nil {
		return fmt.Errorf("creating spill file: %w", err)
	}
	defer os.Remove(spillFile.Name())
	defer spillFile.Close()

	var cfg = combiner.DefaultConfig()
	cfg.SpillThresholdBytes = cmd.SpillThresholdMB << 20
	cfg.ChunkTargetBytes = cmd.ChunkTargetKB << 10

	var c *combiner.Combiner
	if c, err = combiner.Open(bindings, &fileSink{f: spillFile}, cfg); err != nil {
		return fmt.Errorf("opening combiner: %w", err)
	}

	var in *os.File
	if in, err = os.Open(cmd.Input); err != nil {
		return fmt.Errorf("opening input: %w", err)
	}
	defer in.Close()

	var inputDocs, inputBytes int
	var scanner = bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 16<<20)
	for lineNo := 1; scanner.Scan(); lineNo++ {
		var raw = append([]byte(nil), scanner.Bytes()...)
		if len(raw) == 0 {
			continue
		}

		var line inputLine
		if err = json.Unmarshal(raw, &line); err != nil {
			return fmt.Errorf("line %d: invalid json: %w", lineNo, err)
		}

		if err = c.Add(line.Binding, line.Doc, line.Front); err != nil {
			fmt.Fprintf(os.Stderr, "%s: line %d: %v\n", errColor("error"), lineNo, err)
			continue
		}
		inputDocs++
		inputBytes += len(line.Doc)
	}
	if err = scanner.Err(); err != nil {
		return fmt.Errorf("reading input: %w", err)
	}

	var next func() (*combiner.DrainedDoc, error)
	if next, err = c.Drain(); err != nil {
		return fmt.Errorf("starting drain: %w", err)
	}

	var outputDocs, outputBytes int
	var out = bufio.NewWriter(os.Stdout)
	defer out.Flush()

	for {
		var d, derr = next()
		if derr != nil {
			return fmt.Errorf("draining: %w", derr)
		}
		if d == nil {
			break
		}
		outputDocs++
		outputBytes += len(d.DocBytes)
		out.Write(d.DocBytes)
		out.WriteByte('\n')
	}
	if err = out.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "%s: %d docs (%s) in, %d docs (%s) out\n",
		infoColor("combine complete"),
		inputDocs, humanize.Bytes(uint64(inputBytes)),
		outputDocs, humanize.Bytes(uint64(outputBytes)))
	return nil
}

// fileSink adapts an *os.File to combiner.Sink.
type fileSink struct{ f *os.File }

func (s *fileSink) Write(p []byte) (int, error)             { return s.f.Write(p) }
func (s *fileSink) ReadAt(p []byte, off int64) (int, error) { return s.f.ReadAt(p, off) }
