package auth

// Identity names a party: a script hash, address or account id. The engine
// treats it as an opaque string.
type Identity string

type Role string

const (
	RoleOwner    Role = "owner"
	RoleCustomer Role = "customer"
	RoleInsurer  Role = "insurer"
	RoleOracle   Role = "oracle"
	RoleSender   Role = "sender"
)

// Credential pairs an identity with the secret that proves control of it.
type Credential struct {
	Identity Identity `json:"identity" yaml:"identity"`
	Secret   string   `json:"secret" yaml:"secret"`
}
