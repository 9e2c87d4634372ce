package configuration

type UserPrincipal struct {
	Name        string
	Group       string
	Description string
	Home        string
	System      bool
}

type GroupPrincipal struct {
	Name    string
	Members []string
}

// Principals holds the accounts that have to be created. A nil field means
// the account is owned by someone else and must already exist.
type Principals struct {
	User  *UserPrincipal
	Group *GroupPrincipal
}

func (p Principals) Empty() bool {
	return p.User == nil && p.Group == nil
}

func (c Conf) Principals() Principals {
	var p Principals

	if c.User == DefaultUser {
		p.User = &UserPrincipal{
			Name:        c.User,
			Group:       c.Group,
			Description: "healthchecks service owner",
			Home:        c.DataDir,
			System:      true,
		}
	}

	if c.Group == DefaultGroup {
		p.Group = &GroupPrincipal{Name: c.Group, Members: []string{}}
		if p.User != nil {
			p.Group.Members = []string{c.User}
		}
	}

	return p
}
