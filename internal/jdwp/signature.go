package jdwp

import "strings"

var primitiveNames = map[byte]string{
	'B': "byte",
	'C': "char",
	'D': "double",
	'F': "float",
	'I': "int",
	'J': "long",
	'S': "short",
	'V': "void",
	'Z': "boolean",
}

// SignatureToName converts a JNI type signature to its Java source form:
// "Ljava/lang/String;" becomes "java.lang.String" and "[[I" becomes "int[][]".
// Unrecognized input is returned unchanged.
func SignatureToName(sig string) string {
	dims := 0
	for dims < len(sig) && sig[dims] == '[' {
		dims++
	}
	base := sig[dims:]
	var name string
	switch {
	case len(base) == 1 && primitiveNames[base[0]] != "":
		name = primitiveNames[base[0]]
	case len(base) >= 2 && base[0] == 'L' && base[len(base)-1] == ';':
		name = strings.ReplaceAll(base[1:len(base)-1], "/", ".")
	default:
		return sig
	}
	return name + strings.Repeat("[]", dims)
}

// NameToSignature converts a Java class name, such as "com.example.Main" or
// "int[]", to its JNI signature.
func NameToSignature(name string) string {
	dims := 0
	for strings.HasSuffix(name, "[]") {
		name = strings.TrimSuffix(name, "[]")
		dims++
	}
	prefix := strings.Repeat("[", dims)
	for c, n := range primitiveNames {
		if n == name {
			return prefix + string(c)
		}
	}
	return prefix + "L" + strings.ReplaceAll(name, ".", "/") + ";"
}
