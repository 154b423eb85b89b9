package settings

import (
	"fmt"
	"sort"
	"strings"
)

// IDBType names a version store backend.
type IDBType string

const (
	SQLITE   IDBType = "sqlite"
	MEMORY   IDBType = "memory"
	POSTGRES IDBType = "postgres"
)

var dbTypes = map[string]IDBType{
	string(SQLITE):   SQLITE,
	string(MEMORY):   MEMORY,
	string(POSTGRES): POSTGRES,
}

func ParseDBType(s string) (IDBType, error) {
	if t, ok := dbTypes[strings.ToLower(strings.TrimSpace(s))]; ok {
		return t, nil
	}

	known := make([]string, 0, len(dbTypes))
	for name := range dbTypes {
		known = append(known, name)
	}
	sort.Strings(known)
	return "", fmt.Errorf("unknown DB type %q, expected one of %s", s, strings.Join(known, ", "))
}

func (dbType IDBType) String() string {
	return string(dbType)
}
