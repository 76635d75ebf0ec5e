package bootstrap

import (
	"fmt"
	"strconv"
)

// SaveArgv persists argv into the rendezvous store: one APP_ARG_COUNT
// entry plus one APP_ARG_<i> per positional argument. A nil argv records
// a zero count.
func SaveArgv(store Store, argv []string) {
	store.Set(KeyAppArgCount, strconv.Itoa(len(argv)))
	for i, a := range argv {
		store.Set(argKey(i), a)
	}
}

// LoadArgv reconstructs argv from the rendezvous store. It returns
// ok == false if the count is missing, non-positive, MaxArgs or more, or
// any positional slot is absent. In all of those cases the caller must
// fall back to a default command vector.
func LoadArgv(store Store) (argv []string, ok bool) {
	countStr, present := store.Get(KeyAppArgCount)
	if !present {
		return nil, false
	}
	count, err := strconv.Atoi(countStr)
	if err != nil || count <= 0 || count >= MaxArgs {
		return nil, false
	}

	out := make([]string, count)
	for i := 0; i < count; i++ {
		v, present := store.Get(argKey(i))
		if !present {
			return nil, false
		}
		out[i] = v
	}
	return out, true
}

func argKey(i int) string {
	return fmt.Sprintf("%s%d", keyAppArgPrefix, i)
}

// SavePID records a PID under key (APP_PID or SENTINEL_PID).
func SavePID(store Store, key string, pid int) {
	store.Set(key, strconv.Itoa(pid))
}

// LoadPID reads a PID previously recorded by SavePID.
func LoadPID(store Store, key string) (int, bool) {
	v, ok := store.Get(key)
	if !ok {
		return 0, false
	}
	pid, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return pid, true
}
