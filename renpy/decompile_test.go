package renpy

import (
	"bytes"
	"testing"

	"github.com/go-gum/unpack/errors"
	"github.com/go-gum/unpack/internal/fixture"
	"github.com/go-gum/unpack/pickle"
	"github.com/stretchr/testify/require"
)

func astNode(name string, attrs ...fixture.KV) fixture.Object {
	return fixture.Node(astModule, name, attrs)
}

func kv(key string, value any) fixture.KV {
	return fixture.KV{Key: key, Value: value}
}

func pyExpr(source string) fixture.Object {
	return fixture.Object{
		Module: astModule,
		Name:   "PyExpr",
		Args:   fixture.Tuple{source, "game/script.rpy", 12, 3},
	}
}

func pyCode(source string) fixture.Object {
	return fixture.Object{
		Module: astModule,
		Name:   "PyCode",
		Args:   fixture.Tuple{},
		State:  fixture.Tuple{1, pyExpr(source), fixture.Tuple{"game/script.rpy", 12}, "exec"},
	}
}

func imspec(name []any, tag any, at []any) fixture.Tuple {
	return fixture.Tuple{fixture.Tuple(name), nil, tag, at, nil, nil, []any{}}
}

func headerDict(version int, key string) fixture.Dict {
	return fixture.Dict{kv("version", version), kv("key", key)}
}

func decompileNodes(t *testing.T, nodes ...any) string {
	t.Helper()

	value, err := pickle.ParseBytes(fixture.Pickle(fixture.Tuple{headerDict(ScriptVersion, "unlocked"), nodes}))
	require.NoError(t, err)

	text, err := Decompile(value)
	require.NoError(t, err)
	require.True(t, len(text) >= len(preamble))
	require.Equal(t, preamble, text[:len(preamble)])

	return text[len(preamble):]
}

func TestDecompileLabel(t *testing.T) {
	text := decompileNodes(t,
		astNode("Label",
			kv("name", "start"),
			kv("block", []any{
				astNode("Say", kv("who", "e"), kv("what", "Hello")),
				astNode("Say", kv("who", nil), kv("what", "Narration")),
				astNode("Jump", kv("target", "end")),
				astNode("Return"),
			}),
		),
	)

	require.Equal(t, "label start:\n    e \"Hello\"\n    \"Narration\"\n    jump end\n\n\n", text)
}

func TestDecompileStatements(t *testing.T) {
	cases := []struct {
		name string
		node fixture.Object
		want string
	}{
		{"return", astNode("Return"), ""},
		{"user statement", astNode("UserStatement", kv("line", "play music \"theme.ogg\"")), "play music \"theme.ogg\"\n"},
		{"with expression", astNode("With", kv("expr", pyExpr("dissolve"))), "with dissolve\n"},
		{"with none string", astNode("With", kv("expr", "None")), ""},
		{"with none expression", astNode("With", kv("expr", pyExpr("None"))), ""},
		{"python line", astNode("Python", kv("code", pyCode("renpy.pause(1)"))), "$ renpy.pause(1)\n"},
		{"python block", astNode("Python", kv("code", pyCode("a = 1\nb = 2"))), "init python:\n    a = 1\n    b = 2\n"},
		{
			"define",
			astNode("Define", kv("store", "store"), kv("varname", "e"), kv("operator", "="), kv("code", pyCode("Character('Eileen')"))),
			"define store.e = Character('Eileen')\n",
		},
		{
			"define without operator",
			astNode("Define", kv("store", "store.config"), kv("varname", "name"), kv("code", pyCode("'Demo'"))),
			"define store.config.name = 'Demo'\n",
		},
		{
			"default",
			astNode("Default", kv("store", "store"), kv("varname", "points"), kv("code", pyCode("0"))),
			"default store.points = 0\n",
		},
		{"scene", astNode("Scene", kv("imspec", imspec([]any{"bg", "room"}, nil, []any{}))), "scene bg room\n"},
		{"bare scene", astNode("Scene", kv("imspec", nil)), "scene\n"},
		{
			"show",
			astNode("Show", kv("imspec", imspec([]any{"eileen", "happy"}, "e", []any{pyExpr("left")}))),
			"show eileen happy as e at left\n",
		},
		{"hide", astNode("Hide", kv("imspec", fixture.Tuple{fixture.Tuple{"eileen"}, nil, nil})), "hide eileen\n"},
		{"unknown class", astNode("Menu", kv("items", []any{})), "***DECOMPILE ERROR: Unknown class. renpy.ast.Menu***"},
		{"unknown module", fixture.Node("store", "Custom", nil), "***DECOMPILE ERROR: Unknown class. store.Custom***"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want+"\n", decompileNodes(t, tc.node))
		})
	}
}

func TestDecompileInit(t *testing.T) {
	text := decompileNodes(t,
		astNode("Init", kv("block", []any{
			astNode("Define", kv("store", "store"), kv("varname", "a"), kv("operator", "="), kv("code", pyCode("1"))),
			astNode("Define", kv("store", "store"), kv("varname", "b"), kv("operator", "="), kv("code", pyCode("2"))),
		})),
	)

	require.Equal(t, "define store.a = 1\n\ndefine store.b = 2\n\n\n", text)
}

func TestDecompileFromScript(t *testing.T) {
	root := fixture.Tuple{
		headerDict(ScriptVersion, "unlocked"),
		[]any{astNode("Jump", kv("target", "start"))},
	}

	data := buildScript(slot{id: SlotScript, data: fixture.Pickle(root)})

	script, err := LoadScript(bytes.NewReader(data))
	require.NoError(t, err)

	text, err := script.Decompile()
	require.NoError(t, err)
	require.Equal(t, preamble+"jump start\n\n", text)
}

func TestDecompileRejects(t *testing.T) {
	decompile := func(root any) error {
		value, err := pickle.ParseBytes(fixture.Pickle(root))
		require.NoError(t, err)

		text, err := Decompile(value)
		require.Empty(t, text)
		return err
	}

	err := decompile(fixture.Tuple{headerDict(5002000, "unlocked"), []any{}})
	require.ErrorIs(t, err, &errors.Error{Phase: errors.PhaseScript, Kind: errors.KindUnsupportedFeature})

	err = decompile(fixture.Tuple{headerDict(ScriptVersion, "locked"), []any{}})
	require.ErrorIs(t, err, &errors.Error{Phase: errors.PhaseScript, Kind: errors.KindUnsupportedFeature})

	err = decompile(fixture.Tuple{fixture.Dict{kv("version", ScriptVersion)}, []any{}})
	require.ErrorIs(t, err, &errors.Error{Phase: errors.PhaseScript, Kind: errors.KindMalformedHeader})

	err = decompile([]any{"not", "a", "tuple"})
	require.ErrorIs(t, err, &errors.Error{Phase: errors.PhaseScript, Kind: errors.KindTypeMismatch})

	// a node without its attributes fails the whole script
	err = decompile(fixture.Tuple{headerDict(ScriptVersion, "unlocked"), []any{astNode("Jump")}})
	require.ErrorIs(t, err, &errors.Error{Phase: errors.PhaseScript, Kind: errors.KindTypeMismatch})

	err = decompile(fixture.Tuple{headerDict(ScriptVersion, "unlocked"), []any{42}})
	require.ErrorIs(t, err, &errors.Error{Phase: errors.PhaseScript, Kind: errors.KindTypeMismatch})
}

func TestIndent(t *testing.T) {
	require.Equal(t, "", indent(""))
	require.Equal(t, "    a\n\n    b\n", indent("a\n\nb\n"))
	require.Equal(t, "    a", indent("a"))
}
