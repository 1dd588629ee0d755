package operations

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dans-labs/laf-fabric/internal/graf/graftest"
)

type cliFixture struct {
	configPath string
	lafDir     string
	workDir    string
}

func newCLIFixture(t *testing.T) *cliFixture {
	t.Helper()
	root := t.TempDir()
	f := &cliFixture{
		lafDir:  filepath.Join(root, "laf"),
		workDir: filepath.Join(root, "work"),
	}
	graftest.WriteSource(t, f.lafDir)
	graftest.WriteAnnox(t, f.lafDir)

	f.configPath = filepath.Join(root, "config.yaml")
	config := fmt.Sprintf(`
locations:
  laf_dir: %s
  work_dir: %s
loader:
  otype_feature: "db:otype"
  otype_rank: [book, verse, clause, phrase, word]
logging:
  level: error
  verbose: NOTHING
validate:
  enabled: true
`, f.lafDir, f.workDir)
	require.NoError(t, os.WriteFile(f.configPath, []byte(config), 0644))
	return f
}

func (f *cliFixture) run(args ...string) (string, error) {
	var out bytes.Buffer
	app := BuildApp()
	app.Writer = &out
	app.ErrWriter = &out
	err := app.Run(append([]string{"laf-fabric", "--config", f.configPath}, args...))
	return out.String(), err
}

func TestCompileCommand(t *testing.T) {
	f := newCLIFixture(t)

	_, err := f.run("compile", "--source", graftest.Source, "--annox", graftest.Annox)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(f.workDir, graftest.Source, "bin", "manifest.json"))
	assert.FileExists(t, filepath.Join(f.workDir, graftest.Source, "annotations", graftest.Annox, "bin", "manifest.json"))

	_, err = f.run("compile")
	assert.Error(t, err)

	_, err = f.run("compile", "--source", "absent")
	assert.Error(t, err)
}

func TestFeaturesCommand(t *testing.T) {
	f := newCLIFixture(t)
	_, err := f.run("compile", "--source", graftest.Source, "--annox", graftest.Annox)
	require.NoError(t, err)

	out, err := f.run("features", "--source", graftest.Source, "--annox", graftest.Annox)
	require.NoError(t, err)
	assert.Contains(t, out, "ft:word.text")
	assert.Contains(t, out, "db_oid_otype")
	assert.Contains(t, out, "px:note.comment")
}

func TestRunCommand(t *testing.T) {
	f := newCLIFixture(t)

	out, err := f.run("run", "--source", graftest.Source, "plain")
	require.NoError(t, err)
	result := filepath.Join(f.workDir, graftest.Source, "--", "plain", "output.txt")
	assert.Contains(t, out, "result: "+result)
	data, err := os.ReadFile(result)
	require.NoError(t, err)
	assert.Equal(t, "Genesis ", string(data))

	out, err = f.run("run", "--source", graftest.Source, "--features", "db:otype sft:number", "--prepare", "etcbc-sort", "inventory")
	require.NoError(t, err)
	assert.Contains(t, out, "UNKNOWN "+filepath.Join(f.workDir, graftest.Source, "--", "inventory", "inventory.xml"))

	_, err = f.run("run", "--source", graftest.Source, "nope")
	assert.Error(t, err)
	_, err = f.run("run", "--source", graftest.Source)
	assert.Error(t, err)
	_, err = f.run("run", "--source", graftest.Source, "--xmlids", "both", "plain")
	assert.Error(t, err)
}

func TestRunWithSpecFile(t *testing.T) {
	f := newCLIFixture(t)
	spec := filepath.Join(t.TempDir(), "load.yaml")
	require.NoError(t, os.WriteFile(spec, []byte("features:\n  db:\n    node: [otype]\n  ft:\n    node: [text]\n"), 0644))

	_, err := f.run("run", "--source", graftest.Source, "--spec", spec, "inventory")
	require.NoError(t, err)
	data, err := os.ReadFile(filepath.Join(f.workDir, graftest.Source, "--", "inventory", "inventory.xml"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `name="ft:word.text"`)
}

func TestValidateCommand(t *testing.T) {
	f := newCLIFixture(t)
	dir := t.TempDir()
	good := filepath.Join(dir, "good.xml")
	bad := filepath.Join(dir, "bad.xml")
	require.NoError(t, os.WriteFile(good, []byte("<a/>"), 0644))
	require.NoError(t, os.WriteFile(bad, []byte("<a>"), 0644))

	out, err := f.run("validate", good)
	require.NoError(t, err)
	assert.Contains(t, out, "Generated xml file UNKNOWN good.xml")

	out, err = f.run("validate", good, bad)
	assert.Error(t, err)
	assert.Contains(t, out, "Generated xml file NOT VALID bad.xml")
}

func TestGlobalFlags(t *testing.T) {
	f := newCLIFixture(t)

	out, err := f.run("--version")
	require.NoError(t, err)
	assert.Contains(t, out, "laf-fabric version 0.1.0")

	_, err = f.run("--verbose", "DEBUG", "compile", "--source", graftest.Source)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(f.workDir, graftest.Source, "bin", "manifest.json"))
}

func TestConfigRequired(t *testing.T) {
	t.Setenv(configEnv, "")
	app := BuildApp()
	app.Writer = &bytes.Buffer{}
	err := app.Run([]string{"laf-fabric", "features", "--source", "tiny"})
	assert.Error(t, err)
}

func TestHumanBytes(t *testing.T) {
	assert.Equal(t, "512 B", humanBytes(512))
	assert.Equal(t, "1.5 KiB", humanBytes(1536))
	assert.Equal(t, "2.0 MiB", humanBytes(2<<20))
}
