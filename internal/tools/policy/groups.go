package policy

// ToolProfiles defines pre-configured tool sets for common use cases.
// These map profile names to policies with their allowed tool groups.
var ToolProfiles = map[string]*Policy{
	// Coding profile - full development capabilities.
	"coding": {
		Profile: ProfileCoding,
		Allow:   []string{"group:fs", "group:runtime", "group:search"},
	},

	// Readonly profile - observation only, no modifications.
	"readonly": {
		Profile: ProfileReadonly,
		Allow:   []string{"group:readonly"},
	},

	// Full profile - everything allowed (except explicit denies).
	"full": {
		Profile: ProfileFull,
	},

	// Minimal profile - nothing auto-approved.
	"minimal": {
		Profile: ProfileMinimal,
	},
}

// ExpandGroups expands group references in a tool list to their constituent
// tools. Direct tool names are passed through unchanged; results are
// deduplicated.
func ExpandGroups(items []string) []string {
	var result []string
	seen := make(map[string]bool)

	for _, item := range items {
		if tools, ok := DefaultGroups[item]; ok {
			for _, tool := range tools {
				if !seen[tool] {
					seen[tool] = true
					result = append(result, tool)
				}
			}
			continue
		}

		if !seen[item] {
			seen[item] = true
			result = append(result, item)
		}
	}

	return result
}

// GetProfilePolicy returns the policy for a named profile, or nil if it
// doesn't exist.
func GetProfilePolicy(name string) *Policy {
	return ToolProfiles[name]
}

// ListGroups returns all available group names.
func ListGroups() []string {
	groups := make([]string, 0, len(DefaultGroups))
	for name := range DefaultGroups {
		groups = append(groups, name)
	}
	return groups
}

// ListProfiles returns all available profile names.
func ListProfiles() []string {
	profiles := make([]string, 0, len(ToolProfiles))
	for name := range ToolProfiles {
		profiles = append(profiles, name)
	}
	return profiles
}

// IsGroup returns true if the name is a valid group reference.
func IsGroup(name string) bool {
	_, ok := DefaultGroups[name]
	return ok
}

// GetGroupTools returns the tools in a group, or nil if the group doesn't
// exist. The returned slice is a copy.
func GetGroupTools(name string) []string {
	tools, ok := DefaultGroups[name]
	if !ok {
		return nil
	}
	result := make([]string, len(tools))
	copy(result, tools)
	return result
}
