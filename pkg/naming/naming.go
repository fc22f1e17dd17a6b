// Package naming derives deterministic AWS resource names for a deployment stage.
package naming

import "strings"

// App prefixes every resource name.
const App = "phototheory"

// Name length limits of the AWS resources the service creates.
const (
	MaxFunctionName = 64
	MaxQueueName    = 80
	MaxTableName    = 255
	MaxTopicName    = 256
)

var stageAliases = map[string]string{
	"prod":        "live",
	"production":  "live",
	"live":        "live",
	"dev":         "dev",
	"development": "dev",
	"stg":         "stage",
	"stage":       "stage",
	"staging":     "stage",
	"test":        "test",
	"testing":     "test",
	"local":       "local",
}

// NormalizeStage maps stage aliases to canonical values and slugs anything else.
func NormalizeStage(stage string) string {
	stage = strings.ToLower(strings.TrimSpace(stage))
	if canonical, ok := stageAliases[stage]; ok {
		return canonical
	}
	return slug(stage)
}

// ResourceName returns phototheory-<resource>-<stage>, or phototheory-<resource> without a
// stage.
func ResourceName(resource, stage string) string {
	return join(slug(resource), NormalizeStage(stage))
}

// BoundedName is ResourceName cut to at most maxLen bytes. The resource part is shortened
// first so the prefix and stage survive; if even that is not enough the result is truncated.
func BoundedName(resource, stage string, maxLen int) string {
	resource, stage = slug(resource), NormalizeStage(stage)
	name := join(resource, stage)
	if maxLen <= 0 || len(name) <= maxLen {
		return name
	}

	keep := len(resource) - (len(name) - maxLen)
	if keep > 0 {
		return join(strings.TrimRight(resource[:keep], "-"), stage)
	}
	name = join("", stage)
	return strings.TrimRight(name[:min(maxLen, len(name))], "-")
}

func join(resource, stage string) string {
	name := App
	if resource != "" {
		name += "-" + resource
	}
	if stage != "" {
		name += "-" + stage
	}
	return name
}

// slug lower-cases value and turns every run of characters outside [a-z0-9] into one dash,
// with no dash at either end.
func slug(value string) string {
	var b strings.Builder
	pending := false
	for _, r := range strings.ToLower(value) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if pending && b.Len() > 0 {
				b.WriteByte('-')
			}
			pending = false
			b.WriteRune(r)
			continue
		}
		pending = true
	}
	return b.String()
}
