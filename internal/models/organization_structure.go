package models

// DepartmentDefinition describes a department to provision under a new branch,
// together with the positions it should carry.
type DepartmentDefinition struct {
	Name      string   `json:"name"`
	Positions []string `json:"positions"`
}

// DefaultDepartmentStructure is provisioned by the bootstrap command when no
// department names are supplied.
var DefaultDepartmentStructure = []DepartmentDefinition{
	{
		Name:      "Operations",
		Positions: []string{"Shift Supervisor", "Field Officer"},
	},
	{
		Name:      "Security",
		Positions: []string{"Security Lead", "Guard"},
	},
	{
		Name:      "Administration",
		Positions: []string{"Branch Manager", "Clerk"},
	},
}

// DepartmentNames returns the names of the given definitions in order.
func DepartmentNames(structure []DepartmentDefinition) []string {
	names := make([]string, 0, len(structure))
	for _, def := range structure {
		names = append(names, def.Name)
	}
	return names
}
