package ir

// Kind enumerates every op family in spec.md §4.1, grouped as the spec
// groups them (values / memory / arithmetic-logical / control / exceptions
// / interfaces-vtables / closures).
type Kind int

const (
	// values
	KConstant Kind = iota
	KUndef
	KNull
	KThisRef
	KSymbolRef
	KClassRef
	KInterfaceRef
	KNamespaceRef

	// memory
	KVariable
	KParam
	KParamOptional
	KLoad
	KStore
	KAddressOf
	KElementRef
	KPointerOffsetRef
	KNew
	KNewArray
	KArrayLength
	KGCNewTyped

	// arithmetic / logical
	KArithBinary
	KLogicalBinary
	KArithUnary
	KPrefixUnary
	KPostfixUnary
	KStringCompare
	KStringConcat
	KTypeOf
	KSizeOf
	KCast

	// control
	KIf
	KWhile
	KDoWhile
	KFor
	KSwitch
	KLabel
	KBreak
	KContinue
	KResult
	KCondition
	KNoCondition
	KReturn
	KReturnVal
	KYieldReturnVal
	KExit
	KEntry
	KUnreachable

	// exceptions
	KTry
	KThrow
	KCatch
	KInvoke

	// interfaces / vtables
	KVTableOffsetRef
	KVirtualSymbolRef
	KThisSymbolRef
	KThisVirtualSymbolRef
	KInterfaceSymbolRef
	KExtractInterfaceThis
	KNewInterface

	// closures
	KCapture
	KCreateBoundFunction
	KGetThis
	KGetMethod

	// async (for await...of, spec.md §4.3 / §4.7 design notes)
	KAsyncExecute
	KAsyncGroupCreate
	KAsyncAddToGroup
	KAwaitAll
)

var kindNames = map[Kind]string{
	KConstant: "constant", KUndef: "undef", KNull: "null", KThisRef: "this-ref",
	KSymbolRef: "symbol-ref", KClassRef: "class-ref", KInterfaceRef: "interface-ref",
	KNamespaceRef: "namespace-ref",
	KVariable: "variable", KParam: "param", KParamOptional: "param-optional",
	KLoad: "load", KStore: "store", KAddressOf: "address-of", KElementRef: "element-ref",
	KPointerOffsetRef: "pointer-offset-ref", KNew: "new", KNewArray: "new-array",
	KArrayLength: "array-length", KGCNewTyped: "gc-new-typed",
	KArithBinary: "arith-binary", KLogicalBinary: "logical-binary", KArithUnary: "arith-unary",
	KPrefixUnary: "prefix-unary", KPostfixUnary: "postfix-unary", KStringCompare: "string-compare",
	KStringConcat: "string-concat", KTypeOf: "type-of", KSizeOf: "size-of", KCast: "cast",
	KIf: "if", KWhile: "while", KDoWhile: "do-while", KFor: "for", KSwitch: "switch",
	KLabel: "label", KBreak: "break", KContinue: "continue", KResult: "result",
	KCondition: "condition", KNoCondition: "no-condition", KReturn: "return",
	KReturnVal: "return-val", KYieldReturnVal: "yield-return-val", KExit: "exit",
	KEntry: "entry", KUnreachable: "unreachable",
	KTry: "try", KThrow: "throw", KCatch: "catch", KInvoke: "invoke",
	KVTableOffsetRef: "vtable-offset-ref", KVirtualSymbolRef: "virtual-symbol-ref",
	KThisSymbolRef: "this-symbol-ref", KThisVirtualSymbolRef: "this-virtual-symbol-ref",
	KInterfaceSymbolRef: "interface-symbol-ref", KExtractInterfaceThis: "extract-interface-this",
	KNewInterface: "new-interface",
	KCapture: "capture", KCreateBoundFunction: "create-bound-function", KGetThis: "get-this",
	KGetMethod: "get-method",
	KAsyncExecute: "async-execute", KAsyncGroupCreate: "async-group-create",
	KAsyncAddToGroup: "async-add-to-group", KAwaitAll: "await-all",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown-op"
}
