package pickle

import "fmt"

// Opcode is a single operation byte of a pickle stream.
type Opcode byte

const (
	OpMark           Opcode = 0x28 // push special markobject on stack
	OpStop           Opcode = 0x2e // every pickle ends with STOP
	OpPop            Opcode = 0x30 // discard topmost stack item
	OpPopMark        Opcode = 0x31 // discard stack top through topmost markobject
	OpDup            Opcode = 0x32 // duplicate top stack item
	OpFloat          Opcode = 0x46 // push float object; decimal string argument
	OpInt            Opcode = 0x49 // push integer or bool; decimal string argument
	OpBinInt         Opcode = 0x4a // push four-byte signed int
	OpBinInt1        Opcode = 0x4b // push 1-byte unsigned int
	OpLong           Opcode = 0x4c // push long; decimal string argument
	OpBinInt2        Opcode = 0x4d // push 2-byte unsigned int
	OpNone           Opcode = 0x4e // push None
	OpPersID         Opcode = 0x50
	OpBinPersID      Opcode = 0x51
	OpReduce         Opcode = 0x52 // apply callable to argtuple, both on stack
	OpString         Opcode = 0x53
	OpBinString      Opcode = 0x54 // push string; counted binary string argument
	OpShortBinString Opcode = 0x55 // push string; counted binary string argument < 256 bytes
	OpUnicode        Opcode = 0x56
	OpBinUnicode     Opcode = 0x58 // push string; counted UTF-8 string argument
	OpAppend         Opcode = 0x61 // append stack top to list below it
	OpBuild          Opcode = 0x62 // attach state to the instance below it
	OpGlobal         Opcode = 0x63 // push module reference; two newline terminated arguments
	OpDict           Opcode = 0x64 // build a dict from stack items
	OpEmptyDict      Opcode = 0x7d
	OpAppends        Opcode = 0x65 // extend list on stack by topmost stack slice
	OpGet            Opcode = 0x67 // push item from memo; index is string arg
	OpBinGet         Opcode = 0x68 // push item from memo; 1-byte index
	OpInst           Opcode = 0x69
	OpLongBinGet     Opcode = 0x6a // push item from memo; 4-byte index
	OpList           Opcode = 0x6c // build list from topmost stack items
	OpEmptyList      Opcode = 0x5d
	OpObj            Opcode = 0x6f
	OpPut            Opcode = 0x70 // store stack top in memo; index is string arg
	OpBinPut         Opcode = 0x71 // store stack top in memo; 1-byte index
	OpLongBinPut     Opcode = 0x72 // store stack top in memo; 4-byte index
	OpSetItem        Opcode = 0x73 // add key+value pair to dict
	OpTuple          Opcode = 0x74 // build tuple from topmost stack items
	OpEmptyTuple     Opcode = 0x29
	OpSetItems       Opcode = 0x75 // modify dict by adding topmost key+value pairs
	OpBinFloat       Opcode = 0x47 // push float; arg is 8-byte big-endian float encoding

	// protocol 2
	OpProto    Opcode = 0x80 // identify pickle protocol
	OpNewObj   Opcode = 0x81 // build object by applying cls.__new__ to argtuple
	OpExt1     Opcode = 0x82
	OpExt2     Opcode = 0x83
	OpExt4     Opcode = 0x84
	OpTuple1   Opcode = 0x85
	OpTuple2   Opcode = 0x86
	OpTuple3   Opcode = 0x87
	OpNewTrue  Opcode = 0x88
	OpNewFalse Opcode = 0x89
	OpLong1    Opcode = 0x8a // push long from < 256 bytes
	OpLong4    Opcode = 0x8b

	// protocol 3
	OpBinBytes      Opcode = 0x42
	OpShortBinBytes Opcode = 0x43

	// protocol 4
	OpShortBinUnicode Opcode = 0x8c
	OpBinUnicode8     Opcode = 0x8d
	OpBinBytes8       Opcode = 0x8e
	OpEmptySet        Opcode = 0x8f
	OpAddItems        Opcode = 0x90
	OpFrozenSet       Opcode = 0x91
	OpNewObjEx        Opcode = 0x92
	OpStackGlobal     Opcode = 0x93 // same as GLOBAL but using names on the stacks
	OpMemoize         Opcode = 0x94 // store top of the stack in memo
	OpFrame           Opcode = 0x95 // indicate the beginning of a new frame

	// protocol 5
	OpByteArray8     Opcode = 0x96
	OpNextBuffer     Opcode = 0x97
	OpReadonlyBuffer Opcode = 0x98
)

var opcodeNames = map[Opcode]string{
	OpMark:            "MARK",
	OpStop:            "STOP",
	OpPop:             "POP",
	OpPopMark:         "POP_MARK",
	OpDup:             "DUP",
	OpFloat:           "FLOAT",
	OpInt:             "INT",
	OpBinInt:          "BININT",
	OpBinInt1:         "BININT1",
	OpLong:            "LONG",
	OpBinInt2:         "BININT2",
	OpNone:            "NONE",
	OpPersID:          "PERSID",
	OpBinPersID:       "BINPERSID",
	OpReduce:          "REDUCE",
	OpString:          "STRING",
	OpBinString:       "BINSTRING",
	OpShortBinString:  "SHORT_BINSTRING",
	OpUnicode:         "UNICODE",
	OpBinUnicode:      "BINUNICODE",
	OpAppend:          "APPEND",
	OpBuild:           "BUILD",
	OpGlobal:          "GLOBAL",
	OpDict:            "DICT",
	OpEmptyDict:       "EMPTY_DICT",
	OpAppends:         "APPENDS",
	OpGet:             "GET",
	OpBinGet:          "BINGET",
	OpInst:            "INST",
	OpLongBinGet:      "LONG_BINGET",
	OpList:            "LIST",
	OpEmptyList:       "EMPTY_LIST",
	OpObj:             "OBJ",
	OpPut:             "PUT",
	OpBinPut:          "BINPUT",
	OpLongBinPut:      "LONG_BINPUT",
	OpSetItem:         "SETITEM",
	OpTuple:           "TUPLE",
	OpEmptyTuple:      "EMPTY_TUPLE",
	OpSetItems:        "SETITEMS",
	OpBinFloat:        "BINFLOAT",
	OpProto:           "PROTO",
	OpNewObj:          "NEWOBJ",
	OpExt1:            "EXT1",
	OpExt2:            "EXT2",
	OpExt4:            "EXT4",
	OpTuple1:          "TUPLE1",
	OpTuple2:          "TUPLE2",
	OpTuple3:          "TUPLE3",
	OpNewTrue:         "NEWTRUE",
	OpNewFalse:        "NEWFALSE",
	OpLong1:           "LONG1",
	OpLong4:           "LONG4",
	OpBinBytes:        "BINBYTES",
	OpShortBinBytes:   "SHORT_BINBYTES",
	OpShortBinUnicode: "SHORT_BINUNICODE",
	OpBinUnicode8:     "BINUNICODE8",
	OpBinBytes8:       "BINBYTES8",
	OpEmptySet:        "EMPTY_SET",
	OpAddItems:        "ADDITEMS",
	OpFrozenSet:       "FROZENSET",
	OpNewObjEx:        "NEWOBJ_EX",
	OpStackGlobal:     "STACK_GLOBAL",
	OpMemoize:         "MEMOIZE",
	OpFrame:           "FRAME",
	OpByteArray8:      "BYTEARRAY8",
	OpNextBuffer:      "NEXT_BUFFER",
	OpReadonlyBuffer:  "READONLY_BUFFER",
}

// Defined reports whether op is an opcode of any pickle protocol.
func (op Opcode) Defined() bool {
	_, ok := opcodeNames[op]
	return ok
}

func (op Opcode) String() string {
	if name, ok := opcodeNames[op]; ok {
		return name
	}

	return fmt.Sprintf("Opcode(0x%02x)", byte(op))
}
