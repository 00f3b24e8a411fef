package accounts

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/example/priority-ride/internal/models"
)

var ErrUnknownAccount = errors.New("unknown account")

// Registry is an immutable roster of vendor accounts. Build one at startup
// and pass it to whatever needs credentials.
type Registry struct {
	order      []string
	byKey      map[string]models.Account
	defaultKey string
}

func New(accounts ...models.Account) (*Registry, error) {
	r := &Registry{byKey: make(map[string]models.Account, len(accounts))}
	for _, a := range accounts {
		if strings.TrimSpace(a.Key) == "" {
			return nil, fmt.Errorf("account with empty key")
		}
		if _, dup := r.byKey[a.Key]; dup {
			return nil, fmt.Errorf("duplicate account %q", a.Key)
		}
		if a.Name == "" {
			a.Name = a.Key
		}
		r.order = append(r.order, a.Key)
		r.byKey[a.Key] = a
	}
	if len(r.order) > 0 {
		r.defaultKey = r.order[0]
	}
	return r, nil
}

func (r *Registry) List() []models.Account {
	out := make([]models.Account, 0, len(r.order))
	for _, k := range r.order {
		out = append(out, r.byKey[k])
	}
	return out
}

func (r *Registry) Get(key string) (models.Account, bool) {
	a, ok := r.byKey[key]
	return a, ok
}

// Fillers returns every account except excludeKey, in roster order.
func (r *Registry) Fillers(excludeKey string) []models.Account {
	out := make([]models.Account, 0, len(r.order))
	for _, k := range r.order {
		if k == excludeKey {
			continue
		}
		out = append(out, r.byKey[k])
	}
	return out
}

func (r *Registry) Len() int { return len(r.order) }

// DefaultKey is the account used when a caller does not name one.
func (r *Registry) DefaultKey() string { return r.defaultKey }

// Lookup is Get with an error for callers that propagate failures.
func (r *Registry) Lookup(key string) (models.Account, error) {
	a, ok := r.byKey[key]
	if !ok {
		return models.Account{}, fmt.Errorf("%w: %q", ErrUnknownAccount, key)
	}
	return a, nil
}

// FromEnv builds a registry from USER_<KEY>_NAME, USER_<KEY>_AUTH_TOKEN and
// USER_<KEY>_USER_ID variables. ACCOUNTS (comma separated keys) fixes the
// roster order; otherwise keys are sorted. DEFAULT_USER picks the default.
// environ is in os.Environ form.
func FromEnv(environ []string) (*Registry, error) {
	env := make(map[string]string, len(environ))
	for _, kv := range environ {
		if k, v, ok := strings.Cut(kv, "="); ok {
			env[k] = v
		}
	}

	found := map[string]bool{}
	for k := range env {
		if !strings.HasPrefix(k, "USER_") {
			continue
		}
		rest := strings.TrimPrefix(k, "USER_")
		for _, suffix := range []string{"_AUTH_TOKEN", "_USER_ID", "_NAME"} {
			if strings.HasSuffix(rest, suffix) {
				if key := strings.TrimSuffix(rest, suffix); key != "" {
					found[key] = true
				}
				break
			}
		}
	}

	var keys []string
	if list := strings.TrimSpace(env["ACCOUNTS"]); list != "" {
		for _, k := range strings.Split(list, ",") {
			if k = strings.ToUpper(strings.TrimSpace(k)); k != "" {
				keys = append(keys, k)
			}
		}
	} else {
		for k := range found {
			keys = append(keys, k)
		}
		sort.Strings(keys)
	}

	var errs []error
	accounts := make([]models.Account, 0, len(keys))
	for _, k := range keys {
		prefix := "USER_" + k + "_"
		token := strings.TrimSpace(env[prefix+"AUTH_TOKEN"])
		if token == "" {
			errs = append(errs, fmt.Errorf("%sAUTH_TOKEN is not set", prefix))
			continue
		}
		id, err := strconv.ParseInt(strings.TrimSpace(env[prefix+"USER_ID"]), 10, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid %sUSER_ID: %w", prefix, err))
			continue
		}
		accounts = append(accounts, models.Account{
			Key:         strings.ToLower(k),
			Name:        strings.TrimSpace(env[prefix+"NAME"]),
			Credentials: models.Credentials{AuthToken: token, UserID: id},
		})
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	r, err := New(accounts...)
	if err != nil {
		return nil, err
	}
	if d := strings.ToLower(strings.TrimSpace(env["DEFAULT_USER"])); d != "" {
		if _, ok := r.byKey[d]; !ok {
			return nil, fmt.Errorf("DEFAULT_USER: %w: %q", ErrUnknownAccount, d)
		}
		r.defaultKey = d
	}
	return r, nil
}
