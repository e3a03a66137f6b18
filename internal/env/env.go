package env

import (
	"os"
	"strings"
)

type Var map[string]string

// Env composes the environment for a spawned next generation: the OS
// environment as base, minus dropped marker keys, plus overrides.
type Env struct {
	Var Var // overrides (K->V)
	env Var // cached base from OS environment
}

func New() *Env {
	return &Env{
		Var: make(Var),
	}
}

// FromOS caches the current process environment as the base.
func (e *Env) FromOS() {
	base := make(Var)
	for _, kv := range os.Environ() {
		if i := strings.IndexByte(kv, '='); i >= 0 {
			k := kv[:i]
			v := kv[i+1:]
			if k == "" {
				continue
			}
			base[k] = v
		}
	}
	e.env = base
}

// Set sets an override K=V.
func (e *Env) Set(k, v string) {
	if e.Var == nil {
		e.Var = make(Var)
	}
	e.Var[k] = v
}

// DropPrefix removes every base variable whose key starts with prefix.
// Used to keep stale handoff markers out of a child's environment.
func (e *Env) DropPrefix(prefix string) {
	if e.env == nil {
		e.FromOS()
	}
	for k := range e.env {
		if strings.HasPrefix(k, prefix) {
			delete(e.env, k)
		}
	}
}

// Merge composes the final environment list applying order:
// base = OS env (or cached, after drops)
// then apply e.Var overrides
// then apply extra (slice of "K=V") overrides
// Returns the environment slice in "K=V" form, with ${VAR} expansion performed
// using the composed map (simple expansion, no recursion).
func (e *Env) Merge(extra []string) []string {
	if e.env == nil {
		e.FromOS()
	}
	m := make(Var)
	for k, v := range e.env {
		m[k] = v
	}
	for k, v := range e.Var {
		if k == "" {
			continue
		}
		m[k] = v
	}
	for _, kv := range extra {
		if i := strings.IndexByte(kv, '='); i >= 0 {
			k := kv[:i]
			v := kv[i+1:]
			if k == "" { // skip malformed entries with empty key
				continue
			}
			m[k] = v
		}
	}
	expanded := make(Var, len(m))
	for k, v := range m {
		expanded[k] = expand(v, m)
	}
	out := make([]string, 0, len(expanded))
	for k, v := range expanded {
		if k == "" {
			continue
		}
		out = append(out, k+"="+v)
	}
	return out
}

// Expand substitutes ${VAR} references in s from the OS environment.
// Unknown references are left as-is. Used for configured filesystem
// paths such as the coordination socket.
func Expand(s string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	m := make(Var)
	for _, kv := range os.Environ() {
		if i := strings.IndexByte(kv, '='); i >= 0 && kv[:i] != "" {
			m[kv[:i]] = kv[i+1:]
		}
	}
	return expand(s, m)
}

func expand(s string, m Var) string {
	res := s
	// simple ${VAR} expansion; iterate over keys present
	for k, v := range m {
		res = strings.ReplaceAll(res, "${"+k+"}", v)
	}
	return res
}
