package mccmnc

import (
	"encoding/json"
	"os"
	"sync"
)

// NetworkOperator represents an entry in mcc_mnc.json
type NetworkOperator struct {
	MCC         string `json:"mcc"`
	MNC         string `json:"mnc"`
	ISO         string `json:"iso"`
	Country     string `json:"country"`
	CountryCode string `json:"country_code"`
	Name        string `json:"name"`
}

var (
	mu        sync.RWMutex
	operators []NetworkOperator
)

// LoadOperators loads the mcc_mnc.json file
func LoadOperators(path string) error {
	file, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return Parse(file)
}

// Parse replaces the operator table with a JSON array of entries.
func Parse(data []byte) error {
	var list []NetworkOperator
	if err := json.Unmarshal(data, &list); err != nil {
		return err
	}
	mu.Lock()
	operators = list
	mu.Unlock()
	return nil
}

// GetOperatorName finds the operator name for a given MCC and MNC
func GetOperatorName(mcc, mnc string) string {
	mu.RLock()
	defer mu.RUnlock()
	for _, op := range operators {
		if op.MCC == mcc && op.MNC == mnc {
			return op.Name
		}
	}
	return ""
}

// Lookup resolves a numeric PLMN such as "22201" or "310410". The MNC may be
// two or three digits; the three digit form wins.
func Lookup(plmn string) string {
	if len(plmn) < 5 {
		return ""
	}
	if len(plmn) >= 6 {
		if name := GetOperatorName(plmn[:3], plmn[3:6]); name != "" {
			return name
		}
	}
	return GetOperatorName(plmn[:3], plmn[3:5])
}
