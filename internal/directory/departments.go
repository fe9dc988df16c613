package directory

import "strings"

var departmentAliases = map[string]string{
	"management":       "Management",
	"ledningen":        "Management",
	"ledning":          "Management",
	"sales":            "Sales",
	"försäljning":      "Sales",
	"support":          "Support",
	"kundservice":      "Support",
	"customer service": "Support",
	"finance":          "Finance",
	"billing":          "Finance",
	"ekonomi":          "Finance",
	"hr":               "HR",
	"personal":         "HR",
	"reception":        "Reception",
	"receptionen":      "Reception",
}

// CanonicalDepartment maps a spoken department name, in English or Swedish, to
// the name stored in the directory. Unknown names are returned trimmed.
func CanonicalDepartment(spoken string) (string, bool) {
	key := strings.ToLower(strings.TrimSpace(spoken))
	key = strings.TrimPrefix(key, "the ")
	key = strings.TrimSuffix(key, " department")
	key = strings.TrimSuffix(key, " team")

	canonical, ok := departmentAliases[key]
	if !ok {
		return strings.TrimSpace(spoken), false
	}

	return canonical, true
}
