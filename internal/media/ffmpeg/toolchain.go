// Package ffmpeg decodes and encodes video frames through the ffmpeg and
// ffprobe executables.
package ffmpeg

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Toolchain opens source videos and encodes animated WebP artifacts.
type Toolchain struct {
	ffmpegPath  string
	ffprobePath string
	runner      commandRunner
	logger      logrus.FieldLogger
	mkdirTemp   func(dir, pattern string) (string, error)
	removeAll   func(path string) error
	readFile    func(name string) ([]byte, error)
	stat        func(name string) (os.FileInfo, error)
	openFile    func(name string, flag int, perm os.FileMode) (*os.File, error)
}

// NewToolchain constructs the production toolchain with OS dependencies.
// Empty paths fall back to the executables on PATH.
func NewToolchain(ffmpegPath, ffprobePath string, logger logrus.FieldLogger) *Toolchain {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Toolchain{
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
		runner:      &execRunner{},
		logger:      logger,
		mkdirTemp:   os.MkdirTemp,
		removeAll:   os.RemoveAll,
		readFile:    os.ReadFile,
		stat:        os.Stat,
		openFile:    os.OpenFile,
	}
}

// NewToolchainForTests constructs a toolchain with an injectable runner.
func NewToolchainForTests(
	ffmpegPath string,
	ffprobePath string,
	runner commandRunner,
	removeAll func(path string) error,
) *Toolchain {
	t := NewToolchain(ffmpegPath, ffprobePath, nil)
	t.runner = runner
	if removeAll != nil {
		t.removeAll = removeAll
	}
	return t
}
