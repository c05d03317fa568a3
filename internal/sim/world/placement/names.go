package placement

import "strings"

// DisplayName turns an asset id or file name into a human label:
// "basemodule_A.gltf" becomes "Basemodule A".
func DisplayName(asset string) string {
	s := strings.TrimSuffix(asset, ".gltf")
	s = strings.ReplaceAll(s, "_", " ")
	b := []byte(s)
	for i := range b {
		if i > 0 && isWordByte(b[i-1]) {
			continue
		}
		if b[i] >= 'a' && b[i] <= 'z' {
			b[i] -= 'a' - 'A'
		}
	}
	return string(b)
}

func isWordByte(c byte) bool {
	return c == '_' || (c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
