package secret

import "strings"

// Mask returns a masked representation of a credential for logging.
// Short values are fully masked; longer ones keep the first three and the
// last character visible so operators can tell keys apart.
func Mask(s string) string {
	n := len(s)
	if n == 0 {
		return ""
	}
	if n <= 8 {
		return strings.Repeat("*", n)
	}
	return s[:3] + strings.Repeat("*", n-4) + s[n-1:]
}
