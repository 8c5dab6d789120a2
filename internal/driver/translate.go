package driver

// BuildArgs converts settings into the engine's argument vector.
//
// The executable path comes first. Entries follow in insertion order; path is
// skipped, null and false are left out, single-character keys become -k and
// longer keys --key. True emits the flag alone, anything else emits the flag
// followed by the value's string form. Zero and negative integers are kept.
func BuildArgs(s *Settings) []string {
	argv := []string{s.Path()}
	for _, e := range s.entries {
		if e.Key == KeyPath || e.Value.Omitted() {
			continue
		}
		argv = append(argv, flagFor(e.Key))
		if !e.Value.IsTrue() {
			argv = append(argv, e.Value.String())
		}
	}
	return argv
}

func flagFor(key string) string {
	if len(key) == 1 {
		return "-" + key
	}
	return "--" + key
}
