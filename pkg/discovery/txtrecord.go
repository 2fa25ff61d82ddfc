package discovery

import (
	"fmt"
	"strings"
)

// TXTRecordMap is a map of TXT record key-value pairs.
type TXTRecordMap map[string]string

// EncodeSessionTXT creates the TXT records for a session advertisement.
func EncodeSessionTXT(info SessionInfo) TXTRecordMap {
	return TXTRecordMap{
		TXTKeyUser:    info.Username,
		TXTKeyVersion: ProtocolVersion,
	}
}

// DecodeSessionTXT parses the TXT records of a session advertisement.
func DecodeSessionTXT(txt TXTRecordMap) (SessionInfo, error) {
	user, ok := txt[TXTKeyUser]
	if !ok || user == "" {
		return SessionInfo{}, fmt.Errorf("%w: %s", ErrMissingRequired, TXTKeyUser)
	}
	return SessionInfo{Username: user}, nil
}

// TXTRecordsToStrings converts a TXTRecordMap to "key=value" strings.
func TXTRecordsToStrings(txt TXTRecordMap) []string {
	result := make([]string, 0, len(txt))
	for k, v := range txt {
		result = append(result, fmt.Sprintf("%s=%s", k, v))
	}
	return result
}

// StringsToTXTRecords parses "key=value" strings into a TXTRecordMap.
func StringsToTXTRecords(strs []string) TXTRecordMap {
	txt := make(TXTRecordMap)
	for _, s := range strs {
		parts := strings.SplitN(s, "=", 2)
		if len(parts) == 2 {
			txt[parts[0]] = parts[1]
		} else if len(parts) == 1 && parts[0] != "" {
			txt[parts[0]] = ""
		}
	}
	return txt
}
