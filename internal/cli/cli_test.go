package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/lithammer/dedent"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/junbin-yang/statesurf/pkg/chart"
	"github.com/junbin-yang/statesurf/pkg/statemachine/store"
)

// env 每个测试独立的配置文件和快照库
type env struct {
	dir    string
	config string
	db     string
}

func newEnv(t *testing.T, config string) *env {
	t.Helper()
	dir := t.TempDir()
	e := &env{
		dir:    dir,
		config: filepath.Join(dir, "statesurf.yml"),
		db:     filepath.Join(dir, "statesurf.db"),
	}
	require.NoError(t, os.WriteFile(e.config, []byte(strings.TrimLeft(dedent.Dedent(config), "\n")), 0o644))
	return e
}

func (e *env) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(append(args, "--config", e.config))
	err := cmd.Execute()
	return out.String(), err
}

func (e *env) write(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(e.dir, name)
	require.NoError(t, os.WriteFile(path, []byte(strings.TrimLeft(dedent.Dedent(content), "\n")), 0o644))
	return path
}

const quietConfig = `
	log:
	  level: error
`

func TestValidate(t *testing.T) {
	e := newEnv(t, quietConfig)

	out, err := e.run(t, "validate", "-b", "hsm")
	require.NoError(t, err)
	assert.Contains(t, out, "chart:         hsm\n")
	assert.Contains(t, out, "initial:       s211\n")
	assert.Contains(t, out, "default event: A\n")
	assert.Contains(t, out, "guards:        isFooFalse, isFooTrue\n")
	assert.Contains(t, out, "table entries: 20\n")
	assert.Contains(t, out, "tree:\n  s -> s1\n    s1 -> s11\n      s11\n    s2 -> s21\n      s21 -> s211\n        s211\n")

	path := e.write(t, "door.puml", `
		[*] --> closed
		closed --> opened : open [unlocked]
		opened --> closed : close
	`)
	out, err = e.run(t, "validate", "-i", path)
	require.NoError(t, err)
	assert.Contains(t, out, "chart:         door\n")
	assert.Contains(t, out, "actions:       -\n")
}

func TestValidate_Errors(t *testing.T) {
	e := newEnv(t, quietConfig)

	_, err := e.run(t, "validate")
	assert.ErrorIs(t, err, ErrNoChart)

	_, err = e.run(t, "validate", "-b", "nope")
	assert.ErrorContains(t, err, "unknown built-in chart")

	_, err = e.run(t, "validate", "-b", "hsm", "-i", "x.puml")
	assert.ErrorContains(t, err, "mutually exclusive")

	bad := e.write(t, "bad.puml", `
		state a {
		  state b
	`)
	_, err = e.run(t, "validate", "-i", bad)
	assert.ErrorIs(t, err, chart.ErrSyntax)

	_, err = e.run(t, "validate", "-b", "hsm", "--log-level", "loud")
	assert.Error(t, err)
}

func TestSimulate(t *testing.T) {
	e := newEnv(t, quietConfig)

	want := strings.TrimLeft(dedent.Dedent(`
		> start
		  action setFooFalse(s, A)
		  entry s
		  entry s2
		  entry s21
		  entry s211
		= s211
		> G
		  exit s211
		  exit s21
		  exit s2
		  entry s1
		  entry s11
		= s11
		> I
		= s11
		> D
		  guard isFooTrue(s11, D) -> false
		  guard isFooFalse(s11, D) -> true
		  exit s11
		  exit s1
		  action setFooTrue(s11, D)
		  entry s1
		  entry s11
		= s11
	`), "\n")

	out, err := e.run(t, "simulate", "-b", "hsm", "-e", "G,I,D")
	require.NoError(t, err)
	assert.Equal(t, want, out)

	out, err = e.run(t, "simulate", "-b", "hsm", "-e", "G,I,D", "--async")
	require.NoError(t, err)
	assert.Equal(t, want, out)
}

func TestSimulate_GuardsAndMetrics(t *testing.T) {
	e := newEnv(t, quietConfig)

	out, err := e.run(t, "simulate", "-b", "fsm", "-e", "eventA,eventB,eventC", "-a", "guardA", "--metrics", "-q")
	require.NoError(t, err)
	assert.Equal(t, strings.Join([]string{
		`statesurf_discarded_total{chart="fsm"} 0`,
		`statesurf_events_total{chart="fsm"} 3`,
		`statesurf_starts_total{chart="fsm"} 1`,
		`statesurf_terminations_total{chart="fsm"} 0`,
		`statesurf_transitions_total{chart="fsm"} 3`,
	}, "\n")+"\n", out)

	path := e.write(t, "flow.yml", `
		initial: idle
		states:
		  - name: idle
		    transitions:
		      - {event: go, target: busy, guard: ready}
		  - name: busy
	`)
	out, err = e.run(t, "simulate", "-i", path, "-e", "go")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(out, "> go\n  guard ready(idle, go) -> false\n= idle\n"))

	out, err = e.run(t, "simulate", "-i", path, "-e", "go", "--allow", "ready")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(out, "= busy\n"))
}

func TestSnapshot(t *testing.T) {
	e := newEnv(t, quietConfig)

	out, err := e.run(t, "snapshot", "save", "door-1", "-b", "hsm", "-e", "G", "--store", e.db)
	require.NoError(t, err)
	assert.Equal(t, "saved door-1: s11\n", out)

	out, err = e.run(t, "snapshot", "list", "--store", e.db)
	require.NoError(t, err)
	assert.Equal(t, "door-1\n", out)

	out, err = e.run(t, "snapshot", "show", "door-1", "--store", e.db)
	require.NoError(t, err)
	assert.Contains(t, out, `"chart": "hsm"`)
	assert.Contains(t, out, `"state": "s11"`)
	assert.Contains(t, out, `"source": "builtin:hsm"`)

	out, err = e.run(t, "snapshot", "history", "door-1", "--store", e.db)
	require.NoError(t, err)
	assert.Equal(t, "InitialPseudoState -> s211 on A\ns211 -> s11 on G\n", out)

	out, err = e.run(t, "simulate", "-b", "hsm", "--restore", "door-1", "-e", "C", "--store", e.db)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "restored door-1: s11\n> C\n"))
	assert.True(t, strings.HasSuffix(out, "= s211\n"))

	_, err = e.run(t, "simulate", "-b", "fsm", "--restore", "door-1", "--store", e.db)
	assert.ErrorContains(t, err, "invalid snapshot")

	_, err = e.run(t, "snapshot", "delete", "door-1", "--store", e.db)
	require.NoError(t, err)

	out, err = e.run(t, "snapshot", "list", "--store", e.db)
	require.NoError(t, err)
	assert.Empty(t, out)

	_, err = e.run(t, "snapshot", "show", "door-1", "--store", e.db)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestSnapshot_StoreFromConfig(t *testing.T) {
	e := newEnv(t, quietConfig)
	e.write(t, "statesurf.yml", `
		log:
		  level: error
		store:
		  path: `+filepath.Join(e.dir, "configured.db")+`
		  bucket: machines
	`)

	_, err := e.run(t, "snapshot", "save", "m1", "-b", "fsm", "-e", "eventA")
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(e.dir, "configured.db"))

	st, err := store.Open(filepath.Join(e.dir, "configured.db"), store.WithBucket("machines"))
	require.NoError(t, err)
	defer st.Close()
	snap, err := st.Load("m1")
	require.NoError(t, err)
	assert.Equal(t, "fsm", snap.Chart)
	assert.EqualValues(t, "State2", snap.State)
}

func TestRender(t *testing.T) {
	e := newEnv(t, quietConfig)

	out, err := e.run(t, "render", "-b", "hsm")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "stateDiagram-v2\n[*] --> s2\n"))

	out, err = e.run(t, "mermaid", "-b", "fsm", "--guards", "--actions")
	require.NoError(t, err)
	assert.Contains(t, out, "State4 --> State5 : eventD [guardB] / actionB\n")

	out, err = e.run(t, "render", "-b", "hsm", "-f", "dot")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "digraph \"hsm\" {\n"))

	out, err = e.run(t, "render", "-b", "hsm", "-f", "yaml")
	require.NoError(t, err)
	d, err := chart.LoadYAML(strings.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, "hsm", d.Name())

	out, err = e.run(t, "render", "-b", "fsm", "-f", "plantuml")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "@startuml\n[*] --> State1\n"))

	_, err = e.run(t, "render", "-b", "hsm", "-f", "svg")
	assert.ErrorContains(t, err, "output format")
}

func TestConfig(t *testing.T) {
	e := newEnv(t, `
		log:
		  level: error
		machine:
		  queue_size: 8
	`)

	out, err := e.run(t, "config", "path")
	require.NoError(t, err)
	assert.Equal(t, e.config+"\n", out)

	out, err = e.run(t, "config", "show", "-f", "json")
	require.NoError(t, err)
	assert.Contains(t, out, `"queue_size": 8`)
	assert.Contains(t, out, `"namespace": "statesurf"`)

	t.Setenv("STATESURF_QUEUE_SIZE", "32")
	out, err = e.run(t, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "queue_size: 32\n")

	_, err = e.run(t, "config", "show", "-f", "toml")
	assert.Error(t, err)
}

func TestLogFile(t *testing.T) {
	e := newEnv(t, `
		log:
		  level: debug
	`)
	logFile := filepath.Join(e.dir, "statesurf.log")

	_, err := e.run(t, "validate", "-b", "fsm", "--log-file", logFile)
	require.NoError(t, err)

	data, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "chart valid")
	assert.Contains(t, string(data), "config loaded")
}

func TestLogFile_JSON(t *testing.T) {
	e := newEnv(t, `
		log:
		  level: debug
		  format: json
	`)
	logFile := filepath.Join(e.dir, "statesurf.json.log")

	_, err := e.run(t, "validate", "-b", "hsm", "--log-file", logFile)
	require.NoError(t, err)

	data, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"config loaded"`)

	e = newEnv(t, `
		log:
		  format: xml
	`)
	_, err = e.run(t, "validate", "-b", "hsm")
	assert.ErrorContains(t, err, "log encoding")
}
