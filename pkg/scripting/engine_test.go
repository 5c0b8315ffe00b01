package scripting

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T) *LuaEngine {
	t.Helper()
	engine, err := NewLuaEngine(DefaultConfig())
	require.NoError(t, err)
	t.Cleanup(func() { engine.Close() })
	return engine
}

func TestLoadScript(t *testing.T) {
	engine := newTestEngine(t)

	err := engine.LoadScript("test.lua", []byte(`function greet() return "hello" end`))
	assert.NoError(t, err)

	err = engine.LoadScript("broken.lua", []byte(`function broken( syntax error`))
	assert.Error(t, err)
}

func TestExecuteFunction(t *testing.T) {
	engine := newTestEngine(t)
	ctx := context.Background()

	script := `
		function no_args() return "plain" end
		function add(a, b) return a + b end
		function make_table() return {x = 1, y = "two"} end
		function make_list() return {10, 20, 30} end
		function echo_bool(b) return b end
		function nothing() end
	`
	require.NoError(t, engine.LoadScript("test.lua", []byte(script)))

	t.Run("no arguments", func(t *testing.T) {
		result, err := engine.ExecuteFunction(ctx, "no_args")
		require.NoError(t, err)
		assert.Equal(t, "plain", result)
	})

	t.Run("with arguments", func(t *testing.T) {
		result, err := engine.ExecuteFunction(ctx, "add", 2, 3)
		require.NoError(t, err)
		assert.Equal(t, float64(5), result)
	})

	t.Run("table result", func(t *testing.T) {
		result, err := engine.ExecuteFunction(ctx, "make_table")
		require.NoError(t, err)
		table, ok := result.(map[string]interface{})
		require.True(t, ok)
		assert.Equal(t, float64(1), table["x"])
		assert.Equal(t, "two", table["y"])
	})

	t.Run("list result", func(t *testing.T) {
		result, err := engine.ExecuteFunction(ctx, "make_list")
		require.NoError(t, err)
		list, ok := result.([]interface{})
		require.True(t, ok)
		assert.Equal(t, []interface{}{float64(10), float64(20), float64(30)}, list)
	})

	t.Run("bool roundtrip", func(t *testing.T) {
		result, err := engine.ExecuteFunction(ctx, "echo_bool", true)
		require.NoError(t, err)
		assert.Equal(t, true, result)
	})

	t.Run("nil result", func(t *testing.T) {
		result, err := engine.ExecuteFunction(ctx, "nothing")
		require.NoError(t, err)
		assert.Nil(t, result)
	})

	t.Run("missing function", func(t *testing.T) {
		_, err := engine.ExecuteFunction(ctx, "undefined")
		assert.ErrorIs(t, err, ErrFunctionNotFound)
	})

	t.Run("runtime error", func(t *testing.T) {
		require.NoError(t, engine.LoadScript("boom.lua", []byte(`function boom() error("kaboom") end`)))
		_, err := engine.ExecuteFunction(ctx, "boom")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "kaboom")
	})
}

func TestExecuteFunction_MapArgument(t *testing.T) {
	engine := newTestEngine(t)

	script := `
		function read_map(m)
			return m.threshold
		end
	`
	require.NoError(t, engine.LoadScript("test.lua", []byte(script)))

	result, err := engine.ExecuteFunction(context.Background(), "read_map",
		map[string]interface{}{"threshold": 0.25})
	require.NoError(t, err)
	assert.Equal(t, 0.25, result)
}

func TestSandboxing(t *testing.T) {
	engine := newTestEngine(t)
	ctx := context.Background()

	script := `
		function check_os() return os ~= nil end
		function check_io() return io ~= nil end
		function check_require() return require ~= nil end
		function check_math() return math.floor(1.5) == 1 end
		function check_string() return string.upper("ok") == "OK" end
	`
	require.NoError(t, engine.LoadScript("sandbox.lua", []byte(script)))

	result, err := engine.ExecuteFunction(ctx, "check_os")
	require.NoError(t, err)
	assert.Equal(t, false, result, "os should not be available")

	result, err = engine.ExecuteFunction(ctx, "check_io")
	require.NoError(t, err)
	assert.Equal(t, false, result, "io should not be available")

	result, err = engine.ExecuteFunction(ctx, "check_require")
	require.NoError(t, err)
	assert.Equal(t, false, result, "require should not be available")

	// Safe libraries survive the sandbox.
	result, err = engine.ExecuteFunction(ctx, "check_math")
	require.NoError(t, err)
	assert.Equal(t, true, result)

	result, err = engine.ExecuteFunction(ctx, "check_string")
	require.NoError(t, err)
	assert.Equal(t, true, result)
}

func TestScriptTimeout(t *testing.T) {
	engine, err := NewLuaEngine(Config{
		EnableSandboxing: true,
		ScriptTimeoutMs:  50,
	})
	require.NoError(t, err)
	defer engine.Close()

	require.NoError(t, engine.LoadScript("loop.lua", []byte(`
		function spin()
			while true do end
		end
	`)))

	_, err = engine.ExecuteFunction(context.Background(), "spin")
	assert.Error(t, err)
}

func TestAPIFunctions(t *testing.T) {
	engine := newTestEngine(t)
	ctx := context.Background()

	script := `
		function use_now() return agentdb.now() end
		function use_uuid() return agentdb.uuid() end
		function use_json()
			local encoded = agentdb.json_encode({key = "value"})
			local decoded = agentdb.json_decode(encoded)
			return decoded.key
		end
		function use_format() return agentdb.format_time(0) end
	`
	require.NoError(t, engine.LoadScript("api.lua", []byte(script)))

	result, err := engine.ExecuteFunction(ctx, "use_now")
	require.NoError(t, err)
	assert.Greater(t, result.(float64), float64(0))

	result, err = engine.ExecuteFunction(ctx, "use_uuid")
	require.NoError(t, err)
	assert.Len(t, result.(string), 36)

	result, err = engine.ExecuteFunction(ctx, "use_json")
	require.NoError(t, err)
	assert.Equal(t, "value", result)

	result, err = engine.ExecuteFunction(ctx, "use_format")
	require.NoError(t, err)
	assert.NotEmpty(t, result)
}

func TestLoadScriptFile(t *testing.T) {
	engine := newTestEngine(t)

	path := filepath.Join(t.TempDir(), "hook.lua")
	require.NoError(t, os.WriteFile(path, []byte(`function from_file() return "loaded" end`), 0o644))

	require.NoError(t, engine.LoadScriptFile(path))

	result, err := engine.ExecuteFunction(context.Background(), "from_file")
	require.NoError(t, err)
	assert.Equal(t, "loaded", result)

	assert.Error(t, engine.LoadScriptFile(filepath.Join(t.TempDir(), "missing.lua")))
}

func TestLoadScriptDir(t *testing.T) {
	engine := newTestEngine(t)
	dir := t.TempDir()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.lua"),
		[]byte(`function from_a() return "a" end`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.lua"),
		[]byte(`function from_b() return "b" end`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ignored.txt"),
		[]byte(`not lua at all`), 0o644))

	require.NoError(t, engine.LoadScriptDir(dir))

	ctx := context.Background()
	result, err := engine.ExecuteFunction(ctx, "from_a")
	require.NoError(t, err)
	assert.Equal(t, "a", result)

	result, err = engine.ExecuteFunction(ctx, "from_b")
	require.NoError(t, err)
	assert.Equal(t, "b", result)

	assert.Error(t, engine.LoadScriptDir(filepath.Join(dir, "nope")))
}
