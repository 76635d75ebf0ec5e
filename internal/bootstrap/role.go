package bootstrap

// Role is the role tag that parameterizes the otherwise-symmetric
// implementation shared by both peers.
type Role int

const (
	RoleApp Role = iota
	RoleSentinel
)

func (r Role) String() string {
	if r == RoleSentinel {
		return "sentinel"
	}
	return "app"
}

// DetectRole inspects PROCESS_ROLE: "watchdog" means sentinel, anything
// else (including unset) means app.
func DetectRole(store Store) Role {
	v, ok := store.Get(KeyProcessRole)
	if ok && v == roleSentinelValue {
		return RoleSentinel
	}
	return RoleApp
}

// MarkSentinel records this process's role as sentinel, so a child
// re-exec'd into sentinel mode detects it via DetectRole.
func MarkSentinel(store Store) {
	store.Set(KeyProcessRole, roleSentinelValue)
}
