package configuration

import "fmt"

type DB string

const (
	SQLite   DB = "sqlite"
	Postgres DB = "postgres"
	MySQL    DB = "mysql"
)

func DBs() []DB {
	return []DB{SQLite, Postgres, MySQL}
}

func ParseDB(s string) (DB, error) {
	for _, db := range DBs() {
		if string(db) == s {
			return db, nil
		}
	}
	return "", fmt.Errorf("%w: DB %q (want one of %v)", ErrInvalidEnumValue, s, DBs())
}

// AuxiliaryPolicy decides how the alert and report units react to the
// primary service going away.
type AuxiliaryPolicy string

const (
	// Independent units are only ordered after the primary service.
	Independent AuxiliaryPolicy = "independent"
	// Bound units are stopped together with the primary service.
	Bound AuxiliaryPolicy = "bound"
)

func AuxiliaryPolicies() []AuxiliaryPolicy {
	return []AuxiliaryPolicy{Independent, Bound}
}

func ParseAuxiliaryPolicy(s string) (AuxiliaryPolicy, error) {
	for _, p := range AuxiliaryPolicies() {
		if string(p) == s {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: auxiliary policy %q (want one of %v)", ErrInvalidEnumValue, s, AuxiliaryPolicies())
}
