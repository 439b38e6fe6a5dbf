// Package roster loads the employee directory once at startup.
package roster

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/ChuLiYu/wfh-check/pkg/types"
)

var (
	ErrEmptyRoster = errors.New("roster: no employees")
	ErrDuplicateID = errors.New("roster: duplicate employee id")
	ErrMissingID   = errors.New("roster: employee without id")
)

// entry accepts both the bot's historical employees.json shape
// ({"telegramId": 123, "name": ..., "username": ...}) and {"id": "..."}.
type entry struct {
	ID         string      `json:"id"`
	TelegramID json.Number `json:"telegramId"`
	Name       string      `json:"name"`
	Username   string      `json:"username"`
	Handle     string      `json:"handle"`
}

func (e entry) toEmployee() types.Employee {
	id := strings.TrimSpace(e.ID)
	if id == "" {
		id = e.TelegramID.String()
	}
	handle := e.Handle
	if handle == "" {
		handle = e.Username
	}
	name := e.Name
	if name == "" {
		name = handle
	}
	return types.Employee{
		ID:     types.EmployeeID(id),
		Name:   name,
		Handle: strings.TrimPrefix(handle, "@"),
	}
}

// Directory is ordered (report order) and indexed by id.
type Directory struct {
	employees []types.Employee
	index     map[types.EmployeeID]int
}

// New builds a directory, rejecting empty ids and duplicates.
func New(employees []types.Employee) (*Directory, error) {
	if len(employees) == 0 {
		return nil, ErrEmptyRoster
	}
	d := &Directory{
		employees: make([]types.Employee, 0, len(employees)),
		index:     make(map[types.EmployeeID]int, len(employees)),
	}
	for i, emp := range employees {
		if emp.ID == "" {
			return nil, fmt.Errorf("%w (entry %d)", ErrMissingID, i)
		}
		if _, dup := d.index[emp.ID]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateID, emp.ID)
		}
		d.index[emp.ID] = len(d.employees)
		d.employees = append(d.employees, emp)
	}
	return d, nil
}

// Parse decodes a JSON array of roster entries.
func Parse(data []byte) (*Directory, error) {
	var entries []entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse roster: %w", err)
	}
	employees := make([]types.Employee, 0, len(entries))
	for _, e := range entries {
		employees = append(employees, e.toEmployee())
	}
	return New(employees)
}

// Load reads a roster file.
func Load(path string) (*Directory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read roster file: %w", err)
	}
	return Parse(data)
}

// Lookup finds an employee by sender id.
func (d *Directory) Lookup(id types.EmployeeID) (types.Employee, bool) {
	i, ok := d.index[id]
	if !ok {
		return types.Employee{}, false
	}
	return d.employees[i], true
}

// All returns the employees in roster order.
func (d *Directory) All() []types.Employee {
	out := make([]types.Employee, len(d.employees))
	copy(out, d.employees)
	return out
}

// IDs returns employee ids in roster order.
func (d *Directory) IDs() []types.EmployeeID {
	ids := make([]types.EmployeeID, len(d.employees))
	for i, e := range d.employees {
		ids[i] = e.ID
	}
	return ids
}

// Len is the roster size.
func (d *Directory) Len() int { return len(d.employees) }

// Mentions renders ids as mentions, falling back to the raw id.
func (d *Directory) Mentions(ids []types.EmployeeID) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if emp, ok := d.Lookup(id); ok {
			out = append(out, emp.Mention())
			continue
		}
		out = append(out, string(id))
	}
	return out
}
