package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"

	"physdapp/internal/dapp"
	persistlog "physdapp/internal/persistence/log"
	"physdapp/internal/sim/tuning"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run returns the process exit code: 0 ok, 1 error, 2 usage or empty journal,
// 3 digest mismatch.
func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("replay", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		dataDir    = fs.String("data", "./data", "runtime data directory")
		journalDir = fs.String("journal", "", "journal dir containing inputs-*.jsonl.zst (defaults to <data>/journal)")
		tuningPath = fs.String("tuning", "./configs/tuning.yaml", "physics tuning file")
	)
	if err := fs.Parse(args); err != nil {
		return 2
	}

	dir := *journalDir
	if dir == "" {
		dir = filepath.Join(*dataDir, "journal")
	}

	t, err := tuning.Load(*tuningPath)
	if err != nil {
		if !os.IsNotExist(err) {
			fmt.Fprintln(stderr, "load tuning:", err)
			return 1
		}
		t = tuning.Defaults()
	}

	files, err := persistlog.ListInputFiles(dir)
	if err != nil {
		fmt.Fprintln(stderr, "list journal:", err)
		return 1
	}
	if len(files) == 0 {
		fmt.Fprintln(stderr, "no journal files in", dir)
		return 2
	}

	r, err := dapp.NewReplayer(t)
	if err != nil {
		fmt.Fprintln(stderr, "replayer:", err)
		return 1
	}

	for _, path := range files {
		err := persistlog.ReadInputs(path, r.Apply)
		if err == nil {
			continue
		}
		if errors.Is(err, dapp.ErrDigestMismatch) {
			fmt.Fprintf(stderr, "MISMATCH file=%s entry=%d: %v\n", filepath.Base(path), r.Stats().Entries, err)
			return 3
		}
		fmt.Fprintf(stderr, "replay %s: %v\n", filepath.Base(path), err)
		return 1
	}

	st := r.Stats()
	fmt.Fprintf(stdout, "OK files=%d entries=%s runs=%d advances=%s steps=%s\n",
		len(files),
		humanize.Comma(int64(st.Entries)),
		st.Runs,
		humanize.Comma(int64(st.Advances)),
		humanize.Comma(int64(st.Steps)),
	)
	return 0
}
