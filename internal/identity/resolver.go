// Package identity maps internal IPs to employee and infrastructure
// profiles. In production this would sync from AD/Okta over SCIM; here the
// directory is static and lookups are O(1).
package identity

import "net/netip"

// RiskTier grades how sensitive an employee's access is.
type RiskTier string

const (
	TierStandard   RiskTier = "standard"
	TierElevated   RiskTier = "elevated"
	TierPrivileged RiskTier = "privileged"
)

// EmployeeProfile is an immutable identity record.
type EmployeeProfile struct {
	UserID     string   `json:"user_id"`
	UserName   string   `json:"user_name"`
	Department string   `json:"department"`
	Role       string   `json:"role"`
	Email      string   `json:"email"`
	RiskTier   RiskTier `json:"risk_tier"`
}

// subnetDepartment maps a CIDR block to the department seated in it.
type subnetDepartment struct {
	prefix     netip.Prefix
	department string
}

// Resolver answers IP → identity questions for the enrichment stage.
type Resolver struct {
	employees map[string]EmployeeProfile
	infra     map[string]string
	subnets   []subnetDepartment
}

// NewResolver returns a resolver over the built-in corporate directory.
func NewResolver() *Resolver {
	return &Resolver{
		employees: employeeDirectory,
		infra:     infraDirectory,
		subnets:   subnetDepartments,
	}
}

// Resolve returns the employee profile for an internal IP, if registered.
func (r *Resolver) Resolve(ip string) (EmployeeProfile, bool) {
	p, ok := r.employees[ip]
	return p, ok
}

// ResolveInfra returns the infrastructure service name for an IP, if any.
func (r *Resolver) ResolveInfra(ip string) (string, bool) {
	name, ok := r.infra[ip]
	return name, ok
}

// DepartmentForIP determines the department from the subnet table first,
// falling back to a direct employee lookup.
func (r *Resolver) DepartmentForIP(ip string) (string, bool) {
	if addr, err := netip.ParseAddr(ip); err == nil {
		for _, sd := range r.subnets {
			if sd.prefix.Contains(addr) {
				return sd.department, true
			}
		}
	}
	if p, ok := r.employees[ip]; ok {
		return p.Department, true
	}
	return "", false
}

// AllEmployees returns a copy of the directory for admin surfaces.
func (r *Resolver) AllEmployees() map[string]EmployeeProfile {
	out := make(map[string]EmployeeProfile, len(r.employees))
	for ip, p := range r.employees {
		out[ip] = p
	}
	return out
}

var employeeDirectory = map[string]EmployeeProfile{
	"192.168.1.10": {
		UserID:     "EMP-001",
		UserName:   "Ravi Sharma",
		Department: "Engineering",
		Role:       "Senior Developer",
		Email:      "ravi.sharma@company.com",
		RiskTier:   TierStandard,
	},
	"192.168.1.11": {
		UserID:     "EMP-002",
		UserName:   "Priya Patel",
		Department: "Design",
		Role:       "UI/UX Designer",
		Email:      "priya.patel@company.com",
		RiskTier:   TierStandard,
	},
	"192.168.1.12": {
		UserID:     "EMP-003",
		UserName:   "Arjun Mehta",
		Department: "Management",
		Role:       "Engineering Manager",
		Email:      "arjun.mehta@company.com",
		RiskTier:   TierPrivileged,
	},
	"192.168.1.13": {
		UserID:     "EMP-004",
		UserName:   "Meera Kapoor",
		Department: "Data Science",
		Role:       "ML Engineer",
		Email:      "meera.kapoor@company.com",
		RiskTier:   TierElevated,
	},
	"192.168.1.14": {
		UserID:     "EMP-005",
		UserName:   "Kiran Desai",
		Department: "Engineering",
		Role:       "Software Intern",
		Email:      "kiran.desai@company.com",
		RiskTier:   TierStandard,
	},
}

// Servers and gateways — not mapped to people.
var infraDirectory = map[string]string{
	"192.168.1.1":   "Gateway Router",
	"192.168.1.100": "File Server",
	"192.168.1.101": "Git Server",
	"192.168.1.102": "Jira Server",
	"192.168.1.200": "Database Server",
}

var subnetDepartments = []subnetDepartment{
	{netip.MustParsePrefix("192.168.1.0/26"), "Engineering"},
	{netip.MustParsePrefix("192.168.1.64/26"), "Design & Product"},
	{netip.MustParsePrefix("192.168.1.128/26"), "Data Science"},
	{netip.MustParsePrefix("192.168.1.192/26"), "Management & Ops"},
}
