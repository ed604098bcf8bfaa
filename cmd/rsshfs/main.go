// Command rsshfs mounts a directory tree on a remote SSH host as a
// local FUSE filesystem, porting original_source/bbfs.c's userspace
// entry point to cgofuse.
package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/winfsp/cgofuse/fuse"

	"github.com/kuroni/rsshfs/internal/fsops"
	"github.com/kuroni/rsshfs/internal/mountcfg"
)

var rootCmd = &cobra.Command{
	Use:   "rsshfs user@host:/remote/root local-mount logfile [mount-opts...]",
	Short: "Mount a remote directory over SSH as a local FUSE filesystem",
	Args:  cobra.MinimumNArgs(3),
	Run:   mainify(run),
}

var (
	keyFile  string
	keyPass  string
	logLevel string
	cacheMax int
)

func init() {
	flags := rootCmd.Flags()
	flags.StringVar(&keyFile, "key-file", defaultKeyFile(), "path to a PEM-encoded private key")
	flags.StringVar(&keyPass, "key-pass", "", "passphrase for --key-file, if encrypted")
	flags.StringVar(&logLevel, "log-level", "info", "logrus level: trace, debug, info, warn, error")
	flags.IntVar(&cacheMax, "cache-max", 0, "maximum number of simultaneously materialised files (0 = default)")
}

func defaultKeyFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return home + "/.ssh/id_rsa"
}

// mainify wraps a Cobra entry point that can return an error, logging
// and exiting non-zero instead of letting Cobra print Go's default
// error formatting, ported from mutagen's cmd/cobra.go Mainify.
func mainify(entry func(*cobra.Command, []string) error) func(*cobra.Command, []string) {
	return func(cmd *cobra.Command, args []string) {
		if err := entry(cmd, args); err != nil {
			fmt.Fprintln(os.Stderr, "rsshfs:", err)
			os.Exit(1)
		}
	}
}

func run(cmd *cobra.Command, args []string) error {
	endpointArg, mountPoint, logFile := args[0], args[1], args[2]
	mountOpts := args[3:]

	logger, err := newLogger(logFile, logLevel)
	if err != nil {
		return err
	}

	endpoint, err := mountcfg.ParseEndpoint(endpointArg)
	if err != nil {
		return err
	}

	cfg, err := mountcfg.New(mountcfg.Options{
		Endpoint: endpoint,
		KeyFile:  keyFile,
		KeyPass:  keyPass,
		CacheMax: cacheMax,
		Log:      logger,
	})
	if err != nil {
		return err
	}
	defer cfg.Close()

	dispatcher := fsops.New(cfg)
	host := fuse.NewFileSystemHost(dispatcher)
	if !host.Mount(mountPoint, mountOpts) {
		return fmt.Errorf("rsshfs: mount of %s at %s failed", endpointArg, mountPoint)
	}
	return nil
}

func newLogger(logFile, level string) (*logrus.Logger, error) {
	logger := logrus.New()

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("rsshfs: invalid --log-level %q: %w", level, err)
	}
	logger.SetLevel(lvl)

	f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("rsshfs: open log file: %w", err)
	}
	logger.SetOutput(f)

	return logger, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
