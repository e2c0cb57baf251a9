// Package doctor provides environment preflight checks for melsynth.
package doctor

import (
	"fmt"
	"io"
	"os"

	"github.com/example/go-melsynth/internal/config"
	"github.com/example/go-melsynth/internal/dataset"
	"github.com/example/go-melsynth/internal/safetensors"
)

// PassMark and FailMark are the prefix symbols printed for each check result.
const (
	PassMark = "✓"
	FailMark = "✗"
)

// Result collects the outcome of all checks.
type Result struct {
	failures []string
}

// Failed returns true if any check failed.
func (r *Result) Failed() bool { return len(r.failures) > 0 }

// Failures returns the list of failure messages.
func (r *Result) Failures() []string { return append([]string(nil), r.failures...) }

func (r *Result) fail(msg string) { r.failures = append(r.failures, msg) }

// Run executes all preflight checks for cfg and writes human-readable output
// to w. Each check line is prefixed with PassMark or FailMark.
func Run(cfg config.Config, w io.Writer) Result {
	var res Result

	checkCheckpoint(cfg.Paths.CheckpointPath, &res, w)
	checkMetadata(cfg, &res, w)

	if cfg.Synth.Inversion == "vocoder" {
		checkFile("onnxruntime library", cfg.Synth.ORTLibraryPath, &res, w)
		checkFile("vocoder model", cfg.Synth.VocoderModelPath, &res, w)
	} else {
		fmt.Fprintf(w, "%s vocoder: skipped (inversion %q)\n", PassMark, cfg.Synth.Inversion)
	}

	checkOutputDir(cfg.Paths.OutputDir, &res, w)

	return res
}

// checkCheckpoint opens the checkpoint and confirms it carries model weights.
func checkCheckpoint(path string, res *Result, w io.Writer) {
	store, err := safetensors.OpenStore(path, safetensors.StoreOptions{})
	if err != nil {
		res.fail(fmt.Sprintf("checkpoint %q: %v", path, err))
		fmt.Fprintf(w, "%s checkpoint %s: unreadable (%v)\n", FailMark, path, err)

		return
	}
	defer store.Close()

	names := store.Names()
	if len(names) == 0 {
		res.fail(fmt.Sprintf("checkpoint %q holds no tensors", path))
		fmt.Fprintf(w, "%s checkpoint %s: empty\n", FailMark, path)

		return
	}

	fmt.Fprintf(w, "%s checkpoint: %s (%d tensors)\n", PassMark, path, len(names))
}

// checkMetadata parses the training metadata file when one is configured.
// A missing metadata file is reported but synthesis does not need it.
func checkMetadata(cfg config.Config, res *Result, w io.Writer) {
	path := cfg.Paths.MetadataPath
	if path == "" {
		fmt.Fprintf(w, "%s metadata: skipped (not configured)\n", PassMark)

		return
	}

	samples, err := dataset.LoadMetadata(path, cfg.Paths.MelDir, cfg.Paths.EmbedDir)
	if err != nil {
		res.fail(fmt.Sprintf("metadata %q: %v", path, err))
		fmt.Fprintf(w, "%s metadata %s: %v\n", FailMark, path, err)

		return
	}

	fmt.Fprintf(w, "%s metadata: %s (%d usable samples)\n", PassMark, path, len(samples))
}

func checkFile(label, path string, res *Result, w io.Writer) {
	if path == "" {
		res.fail(fmt.Sprintf("%s: no path configured", label))
		fmt.Fprintf(w, "%s %s: not configured\n", FailMark, label)

		return
	}

	if _, err := os.Stat(path); err != nil {
		res.fail(fmt.Sprintf("%s %q: %v", label, path, err))
		fmt.Fprintf(w, "%s %s %s: not found\n", FailMark, label, path)

		return
	}

	fmt.Fprintf(w, "%s %s: %s\n", PassMark, label, path)
}

// checkOutputDir confirms the output directory exists or can be created.
func checkOutputDir(dir string, res *Result, w io.Writer) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		res.fail(fmt.Sprintf("output dir %q: %v", dir, err))
		fmt.Fprintf(w, "%s output dir %s: %v\n", FailMark, dir, err)

		return
	}

	fmt.Fprintf(w, "%s output dir: %s\n", PassMark, dir)
}
