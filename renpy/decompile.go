package renpy

import (
	"fmt"
	"strings"

	"github.com/go-gum/unpack"
	"github.com/go-gum/unpack/errors"
	"github.com/go-gum/unpack/pickle"
)

// ScriptVersion is the only script version accepted in the header.
const ScriptVersion = 5003000

const unlockedKey = "unlocked"

const astModule = "renpy.ast"

const preamble = "# Decompiled Ren'Py script.\n# Decompilation may not be accurate to source code.\n"

const indentation = "    "

type scriptHeader struct {
	Version int64  `unpack:"version"`
	Key     string `unpack:"key"`
}

var headerDecoder = unpack.NewDecoder().RequireValues()

// Decompile prints the syntax tree of a script back into source. value is the
// parsed content of SlotScript, a tuple of the header dict and the list of nodes.
//
// Nodes of classes outside the known set are printed as a placeholder marker, the
// rest of the script is still printed.
func Decompile(value pickle.Value) (string, error) {
	root, err := pickle.AsTuple(value, 2)
	if err != nil {
		return "", mismatch("script root", err)
	}

	header, err := unpack.UnmarshalNewWith[scriptHeader](headerDecoder, pickle.Source(root[0]))
	if err != nil {
		return "", errors.New(errors.PhaseScript, errors.KindMalformedHeader).
			Detail("script header").
			Cause(err).
			Build()
	}

	if header.Version != ScriptVersion {
		return "", errors.New(errors.PhaseScript, errors.KindUnsupportedFeature).
			Value(header.Version).
			Detail("script version %d", header.Version).
			Build()
	}

	if header.Key != unlockedKey {
		return "", errors.New(errors.PhaseScript, errors.KindUnsupportedFeature).
			Value(header.Key).
			Detail("script key %q", header.Key).
			Build()
	}

	nodes, err := pickle.AsList(root[1])
	if err != nil {
		return "", mismatch("script nodes", err)
	}

	var out strings.Builder
	out.WriteString(preamble)

	for _, node := range nodes {
		text, err := printNode(node)
		if err != nil {
			return "", err
		}

		out.WriteString(text)
		out.WriteByte('\n')
	}

	return out.String(), nil
}

// Placeholder is printed in place of a node of an unknown class.
func Placeholder(class pickle.ModuleRef) string {
	return fmt.Sprintf("***DECOMPILE ERROR: Unknown class. %s***", class)
}

func mismatch(what string, err error) error {
	return errors.New(errors.PhaseScript, errors.KindTypeMismatch).
		Detail("%s", what).
		Cause(err).
		Build()
}

func printNode(value pickle.Value) (string, error) {
	switch value := value.(type) {
	case pickle.String:
		// source code may be stored as a plain string
		return string(value), nil

	case *pickle.Instance:
		if value.Class.Module != astModule {
			return Placeholder(value.Class), nil
		}

		return printAST(node{value})

	default:
		_, err := pickle.AsInstance(value)
		return "", mismatch("node", err)
	}
}

func printAST(n node) (string, error) {
	switch n.inst.Class.Name {
	case "Return":
		return "", nil

	case "Label":
		return n.printLabel()

	case "Jump":
		target, err := n.string("target")
		if err != nil {
			return "", err
		}

		return fmt.Sprintf("jump %s\n", target), nil

	case "Say":
		return n.printSay()

	case "UserStatement":
		line, err := n.string("line")
		if err != nil {
			return "", err
		}

		return line + "\n", nil

	case "With":
		return n.printWith()

	case "PyExpr":
		return n.printPyExpr()

	case "PyCode":
		return n.printPyCode()

	case "Scene":
		return n.printImage("scene", true)

	case "Show":
		return n.printImage("show", false)

	case "Hide":
		return n.printImage("hide", false)

	case "Init":
		children, err := n.block("block")
		if err != nil {
			return "", err
		}

		return strings.Join(children, "\n") + "\n", nil

	case "Define":
		return n.printDefine("define")

	case "Default":
		return n.printDefine("default")

	case "Python":
		return n.printPython()

	default:
		return Placeholder(n.inst.Class), nil
	}
}

// node is an instance of a class of the renpy.ast module. Attributes are stored
// in the state of the instance.
type node struct {
	inst *pickle.Instance
}

func (n node) attr(name string) (pickle.Value, error) {
	value, ok := n.inst.Attr(name)
	if !ok {
		return nil, errors.New(errors.PhaseScript, errors.KindTypeMismatch).
			Value(name).
			Detail("%s has no attribute %q", n.inst.Class, name).
			Build()
	}

	return value, nil
}

func (n node) string(name string) (string, error) {
	value, err := n.attr(name)
	if err != nil {
		return "", err
	}

	text, err := pickle.AsString(value)
	if err != nil {
		return "", mismatch(n.inst.Class.String()+"."+name, err)
	}

	return text, nil
}

// optionalString returns "" for a missing or None attribute.
func (n node) optionalString(name string) (string, bool, error) {
	value, ok := n.inst.Attr(name)
	if !ok {
		return "", false, nil
	}

	text, ok, err := pickle.Optional(value, pickle.AsString)
	if err != nil {
		return "", false, mismatch(n.inst.Class.String()+"."+name, err)
	}

	return text, ok, nil
}

// block prints every node in the list stored under name.
func (n node) block(name string) ([]string, error) {
	value, err := n.attr(name)
	if err != nil {
		return nil, err
	}

	children, err := pickle.AsList(value)
	if err != nil {
		return nil, mismatch(n.inst.Class.String()+"."+name, err)
	}

	result := make([]string, 0, len(children))
	for _, child := range children {
		text, err := printNode(child)
		if err != nil {
			return nil, err
		}

		result = append(result, text)
	}

	return result, nil
}

// code prints the code object stored under name.
func (n node) code(name string) (string, error) {
	value, err := n.attr(name)
	if err != nil {
		return "", err
	}

	return printNode(value)
}

func (n node) printLabel() (string, error) {
	name, err := n.string("name")
	if err != nil {
		return "", err
	}

	children, err := n.block("block")
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("label %s:\n%s\n", name, indent(strings.Join(children, ""))), nil
}

func (n node) printSay() (string, error) {
	what, err := n.string("what")
	if err != nil {
		return "", err
	}

	who, ok, err := n.optionalString("who")
	if err != nil {
		return "", err
	}

	if !ok {
		return fmt.Sprintf("\"%s\"\n", what), nil
	}

	return fmt.Sprintf("%s \"%s\"\n", who, what), nil
}

func (n node) printWith() (string, error) {
	expr, err := n.attr("expr")
	if err != nil {
		return "", err
	}

	text, err := printNode(expr)
	if err != nil {
		return "", err
	}

	// a with None follows every statement carrying a with clause
	if text == "None" {
		return "", nil
	}

	return fmt.Sprintf("with %s\n", text), nil
}

// printPyExpr prints the source of an expression. PyExpr is a str subclass, its
// constructor arguments start with the source text.
func (n node) printPyExpr() (string, error) {
	args, err := pickle.AsList(n.inst.Args)
	if err != nil || len(args) == 0 {
		return "", mismatch("PyExpr arguments", err)
	}

	text, err := pickle.AsString(args[0])
	if err != nil {
		return "", mismatch("PyExpr source", err)
	}

	return text, nil
}

// printPyCode prints the source of a code object. Its state is the tuple
// (version, source, location, mode[, py]).
func (n node) printPyCode() (string, error) {
	state, err := pickle.AsList(n.inst.State)
	if err != nil || len(state) < 2 {
		return "", mismatch("PyCode state", err)
	}

	return printNode(state[1])
}

// printImage prints scene, show and hide statements. The image specifier is the
// tuple (name, expression, tag, at_list, layer, zorder, behind), older scripts
// store only a prefix of it.
func (n node) printImage(keyword string, optional bool) (string, error) {
	value, err := n.attr("imspec")
	if err != nil {
		return "", err
	}

	if _, isNone := value.(pickle.None); isNone && optional {
		return keyword + "\n", nil
	}

	imspec, err := pickle.AsList(value)
	if err != nil || len(imspec) == 0 {
		return "", mismatch("image specifier", err)
	}

	name, err := pickle.AsList(imspec[0])
	if err != nil {
		return "", mismatch("image name", err)
	}

	var words []string
	for _, part := range name {
		text, err := pickle.AsString(part)
		if err != nil {
			return "", mismatch("image name", err)
		}

		words = append(words, text)
	}

	var out strings.Builder
	out.WriteString(keyword)
	out.WriteByte(' ')
	out.WriteString(strings.Join(words, " "))

	if len(imspec) > 2 {
		tag, ok, err := pickle.Optional(imspec[2], pickle.AsString)
		if err != nil {
			return "", mismatch("image tag", err)
		}

		if ok {
			out.WriteString(" as ")
			out.WriteString(tag)
		}
	}

	if len(imspec) > 3 {
		atList, err := pickle.AsList(imspec[3])
		if err != nil {
			return "", mismatch("image at list", err)
		}

		var transforms []string
		for _, item := range atList {
			text, err := printNode(item)
			if err != nil {
				return "", err
			}

			transforms = append(transforms, text)
		}

		if len(transforms) > 0 {
			out.WriteString(" at ")
			out.WriteString(strings.Join(transforms, ", "))
		}
	}

	if len(imspec) > 4 {
		layer, ok, err := pickle.Optional(imspec[4], pickle.AsString)
		if err != nil {
			return "", mismatch("image layer", err)
		}

		if ok {
			out.WriteString(" onlayer ")
			out.WriteString(layer)
		}
	}

	out.WriteByte('\n')
	return out.String(), nil
}

func (n node) printDefine(keyword string) (string, error) {
	store, err := n.string("store")
	if err != nil {
		return "", err
	}

	varname, err := n.string("varname")
	if err != nil {
		return "", err
	}

	operator := "="
	if keyword == "define" {
		if op, ok, err := n.optionalString("operator"); err != nil {
			return "", err
		} else if ok {
			operator = op
		}
	}

	code, err := n.code("code")
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("%s %s.%s %s %s\n", keyword, store, varname, operator, code), nil
}

func (n node) printPython() (string, error) {
	code, err := n.code("code")
	if err != nil {
		return "", err
	}

	code = strings.TrimSuffix(code, "\n")
	if !strings.Contains(code, "\n") {
		return fmt.Sprintf("$ %s\n", code), nil
	}

	return fmt.Sprintf("init python:\n%s\n", indent(code)), nil
}

// indent prefixes every non empty line of text.
func indent(text string) string {
	var out strings.Builder

	for _, line := range strings.SplitAfter(text, "\n") {
		if line != "" && line != "\n" {
			out.WriteString(indentation)
		}

		out.WriteString(line)
	}

	return out.String()
}
