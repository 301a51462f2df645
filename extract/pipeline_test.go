package extract

import (
	"context"
	stderrors "errors"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/fxamacker/cbor/v2"
	"github.com/go-gum/unpack/internal/binread"
	"github.com/go-gum/unpack/internal/fixture"
	"github.com/go-gum/unpack/vfs"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type memFile struct {
	path string
	data []byte
	err  error
}

func (f memFile) Path() string              { return f.path }
func (f memFile) ReadData() ([]byte, error) { return f.data, f.err }

type memDir []vfs.Entry

func (memDir) Path() string                      { return "" }
func (d memDir) ReadEntries() ([]vfs.Entry, error) { return d, nil }

func compiledScript() []byte {
	root := fixture.Tuple{
		fixture.Dict{{Key: "version", Value: 5003000}, {Key: "key", Value: "unlocked"}},
		[]any{fixture.Node("renpy.ast", "Jump", fixture.Dict{{Key: "target", Value: "start"}})},
	}

	return fixture.RPC2(fixture.Pickle(root))
}

// emptyResource is a container without any resources.
func emptyResource() []byte {
	w := binread.NewWriter()
	w.Raw([]byte("RSRC")...)
	w.U32(0).U32(0)
	w.U32(4).U32(2)
	w.I32(5)
	w.CString32("Resource")
	w.U64(0)
	w.U32(0).U32(0)
	w.Raw(make([]byte, 44)...)
	w.U32(0).U32(0).U32(0)
	return w.Bytes()
}

func newPipeline(t *testing.T, mode Mode) (*Pipeline, *observer.ObservedLogs) {
	t.Helper()

	core, logs := observer.New(zap.DebugLevel)

	config := DefaultConfig()
	config.Output = filepath.Join(t.TempDir(), "out")
	config.Mode = mode
	config.Workers = 2

	return &Pipeline{Config: config, Logger: zap.New(core)}, logs
}

func readOutput(t *testing.T, p *Pipeline, path string) string {
	t.Helper()

	data, err := os.ReadFile(filepath.Join(p.Config.Output, filepath.FromSlash(path)))
	require.NoError(t, err)

	return string(data)
}

func TestRunExtractsAndConverts(t *testing.T) {
	fsys := fstest.MapFS{
		"game/script.rpyc":   {Data: compiledScript()},
		"game/broken.rpyc":   {Data: []byte("RENPY RPC2 but nothing else")},
		"game/images/bg.png": {Data: []byte("png data")},
		"scenes/main.scn":    {Data: emptyResource()},
	}

	p, logs := newPipeline(t, ModeOverwrite)

	report, err := p.Run(context.Background(), vfs.FromFS(fsys, "."))
	require.NoError(t, err)
	require.Empty(t, report.Failures)
	require.NoError(t, report.Err())

	require.Equal(t, 4, report.Written)
	require.Equal(t, 2, report.Converted)

	require.Equal(t, "# Decompiled Ren'Py script.\n# Decompilation may not be accurate to source code.\njump start\n\n",
		readOutput(t, p, "game/script.rpy"))

	// conversion failed, the file is written unchanged
	require.Equal(t, "RENPY RPC2 but nothing else", readOutput(t, p, "game/broken.rpyc"))
	require.Equal(t, "png data", readOutput(t, p, "game/images/bg.png"))

	var dump map[string]any
	require.NoError(t, cbor.Unmarshal([]byte(readOutput(t, p, "scenes/main.scn.cbor")), &dump))
	require.Equal(t, "Resource", dump["type"])

	require.Equal(t, 1, logs.FilterMessage("Conversion failed, writing file unchanged").Len())
	require.Equal(t, 4, logs.FilterMessage("Extracted file").Len())
}

func TestRunWithoutConversion(t *testing.T) {
	fsys := fstest.MapFS{"game/script.rpyc": {Data: compiledScript()}}

	p, _ := newPipeline(t, ModeOverwrite)
	p.Config.Convert = false

	report, err := p.Run(context.Background(), vfs.FromFS(fsys, "."))
	require.NoError(t, err)
	require.Equal(t, 1, report.Written)
	require.Zero(t, report.Converted)
	require.Equal(t, string(compiledScript()), readOutput(t, p, "game/script.rpyc"))
}

func TestRunStripsResourcePrefix(t *testing.T) {
	dir := memDir{
		memFile{path: "res://project.binary", data: []byte("config")},
		memFile{path: "res://../../escape", data: []byte("evil")},
	}

	p, _ := newPipeline(t, ModeOverwrite)

	report, err := p.Run(context.Background(), dir)
	require.NoError(t, err)
	require.Equal(t, 1, report.Written)
	require.Equal(t, "config", readOutput(t, p, "project.binary"))

	require.Len(t, report.Failures, 1)
	require.Equal(t, "res://../../escape", report.Failures[0].Path)
	require.ErrorIs(t, report.Err(), ErrEscapesOutput)
}

func TestRunCollectsReadFailures(t *testing.T) {
	failure := stderrors.New("disk on fire")

	dir := memDir{
		memFile{path: "good.txt", data: []byte("good")},
		memFile{path: "bad.txt", err: failure},
	}

	p, logs := newPipeline(t, ModeOverwrite)

	report, err := p.Run(context.Background(), dir)
	require.NoError(t, err)
	require.Equal(t, 1, report.Written)
	require.Len(t, report.Failures, 1)
	require.ErrorIs(t, report.Failures[0], failure)
	require.Equal(t, 1, logs.FilterMessage("Failed to extract file").Len())
}

func TestRunModes(t *testing.T) {
	dir := memDir{memFile{path: "a.txt", data: []byte("new")}}

	prepare := func(t *testing.T, mode Mode) *Pipeline {
		p, _ := newPipeline(t, mode)
		require.NoError(t, os.MkdirAll(p.Config.Output, 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(p.Config.Output, "a.txt"), []byte("old"), 0o644))
		require.NoError(t, os.WriteFile(filepath.Join(p.Config.Output, "stray.txt"), []byte("stray"), 0o644))
		return p
	}

	t.Run("keep", func(t *testing.T) {
		p := prepare(t, ModeKeep)

		report, err := p.Run(context.Background(), dir)
		require.NoError(t, err)
		require.Equal(t, 1, report.Skipped)
		require.Zero(t, report.Written)
		require.Equal(t, "old", readOutput(t, p, "a.txt"))
		require.Equal(t, "stray", readOutput(t, p, "stray.txt"))
	})

	t.Run("overwrite", func(t *testing.T) {
		p := prepare(t, ModeOverwrite)

		report, err := p.Run(context.Background(), dir)
		require.NoError(t, err)
		require.Equal(t, 1, report.Written)
		require.Equal(t, "new", readOutput(t, p, "a.txt"))
		require.Equal(t, "stray", readOutput(t, p, "stray.txt"))
	})

	t.Run("clean", func(t *testing.T) {
		p := prepare(t, ModeClean)

		report, err := p.Run(context.Background(), dir)
		require.NoError(t, err)
		require.Equal(t, 1, report.Written)
		require.Equal(t, "new", readOutput(t, p, "a.txt"))

		_, err = os.Stat(filepath.Join(p.Config.Output, "stray.txt"))
		require.ErrorIs(t, err, os.ErrNotExist)
	})
}

func TestRunSkipsExtensions(t *testing.T) {
	dir := memDir{
		memFile{path: "music.ogg", data: []byte("ogg")},
		memFile{path: "text.txt", data: []byte("txt")},
	}

	p, logs := newPipeline(t, ModeOverwrite)
	p.Config.Skip.Extensions = []string{".OGG"}

	report, err := p.Run(context.Background(), dir)
	require.NoError(t, err)
	require.Equal(t, 1, report.Written)
	require.Equal(t, 1, report.Skipped)
	require.Equal(t, 1, logs.FilterMessage("Skipping file by extension").Len())

	_, err = os.Stat(filepath.Join(p.Config.Output, "music.ogg"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p, _ := newPipeline(t, ModeOverwrite)

	_, err := p.Run(ctx, memDir{memFile{path: "a.txt", data: []byte("a")}})
	require.ErrorIs(t, err, context.Canceled)
}

func TestRunRejectsInvalidConfig(t *testing.T) {
	p, _ := newPipeline(t, Mode("sometimes"))

	_, err := p.Run(context.Background(), memDir{})
	require.ErrorContains(t, err, "unknown mode")
}

func TestOutputPath(t *testing.T) {
	root := filepath.Join("out", "dir")

	path, err := OutputPath(root, "res://scenes/main.scn")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(root, "scenes", "main.scn"), path)

	path, err = OutputPath(root, "game/a/../b.txt")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(root, "game", "b.txt"), path)

	for _, bad := range []string{"../up", "/absolute", "res://../up", "", "res://"} {
		_, err := OutputPath(root, bad)
		require.ErrorIs(t, err, ErrEscapesOutput, bad)
	}
}
