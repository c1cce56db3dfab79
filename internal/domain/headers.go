package domain

import "strings"

func NormalizeHeaderKey(k string) string {
	return strings.ToLower(strings.TrimSpace(k))
}

// NormalizeHeaders returns a copy of h with lowercased keys. Later keys win
// when two differ only in case.
func NormalizeHeaders(h map[string]string) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[NormalizeHeaderKey(k)] = v
	}
	return out
}

// NormalizeAddress lowercases and trims an address, dropping any display name.
func NormalizeAddress(addr string) string {
	addr = strings.TrimSpace(addr)
	if i := strings.LastIndex(addr, "<"); i >= 0 {
		if j := strings.Index(addr[i:], ">"); j > 0 {
			addr = addr[i+1 : i+j]
		}
	}
	return strings.ToLower(strings.TrimSpace(addr))
}
