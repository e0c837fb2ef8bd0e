// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"errors"
	"slices"

	"github.com/charmbracelet/glamour"
	"golang.org/x/exp/maps"

	"github.com/sofastack/sofa-ark-sub003/internal/dag"
	"github.com/sofastack/sofa-ark-sub003/pkg/arkmod"
)

type Id int

const (
	ConfigLoadFailedId Id = iota + 1
	PlanVerificationFailedId
	ModuleNotFoundId
	DuplicateModuleId
	DescriptorInvalidId
	InvalidDesiredStateId
	ConflictingDesiredStateId
	MultipleActiveVersionsId
	IllegalTransitionId
	IllegalStateId
	ModuleLoadFailedId
	DependencyCycleId
)

type MarkdownMsg string

type HttpLink string

type Issue struct {
	id       Id          // ID used to lookup the issue
	mdMsg    MarkdownMsg // Markdown text that will be rendered
	docLinks []HttpLink
	extLinks []HttpLink
	// sentinel is matched with errors.Is by ForError.
	sentinel error
}

func (i *Issue) Id() Id {
	return i.id
}

func (i *Issue) MarkdownMsg() MarkdownMsg {
	return i.mdMsg
}

func (i *Issue) DocLinks() []HttpLink {
	return slices.Clone(i.docLinks)
}

func (i *Issue) ExtLinks() []HttpLink {
	return slices.Clone(i.extLinks)
}

func (i *Issue) Render(stylePath string) (string, error) {
	extraMd := ""
	if len(i.docLinks) > 0 || len(i.extLinks) > 0 {
		extraMd += "\n\n## See also\n"
		for _, link := range i.docLinks {
			extraMd += "- [" + string(link) + "](" + string(link) + ")\n"
		}
		for _, link := range i.extLinks {
			extraMd += "- [" + string(link) + "](" + string(link) + ")\n"
		}
	}
	return render(string(i.mdMsg)+extraMd, stylePath)
}

var (
	render = glamour.Render

	configLoadFailedIssue = &Issue{
		id: ConfigLoadFailedId,
		mdMsg: `
# Failed to load configuration!

arkctl could not read its configuration file.

## Things you can try:
- Print the effective configuration:
~~~
$ arkctl config show
~~~
- Check the CUE syntax of ~/.config/arkctl/config.cue
- Override single values with ARKCTL_* environment variables, e.g.
~~~
$ ARKCTL_LOG_LEVEL=debug arkctl state
~~~`,
		docLinks: []HttpLink{"https://cuelang.org/docs/"},
	}

	moduleNotFoundIssue = &Issue{
		id: ModuleNotFoundId,
		mdMsg: `
# Module not found!

No module with that name and version is registered.

## Things you can try:
- List what is registered:
~~~
$ arkctl state
~~~
- Check the spelling of the name and version (format: name:version)`,
		sentinel: arkmod.ErrModuleNotFound,
	}

	duplicateModuleIssue = &Issue{
		id: DuplicateModuleId,
		mdMsg: `
# Module already registered!

A module with the same name and version is already present. Each version
can only be installed once.

## Things you can try:
- Uninstall the existing version first, or pick a new version number
- Remove duplicate descriptors from the module directories`,
		sentinel: arkmod.ErrDuplicateModule,
	}

	descriptorInvalidIssue = &Issue{
		id: DescriptorInvalidId,
		mdMsg: `
# Invalid module descriptor!

A module descriptor (module.cue, module.toml or module.yaml) failed validation.

## Things you can try:
- Make sure name and version are set and contain no ':' ';' '?' or '&'
- Make sure kind is either "biz" or "plugin"
- Check that every import and export pattern is non-empty`,
		sentinel: arkmod.ErrInvalidDescriptor,
	}

	invalidDesiredStateIssue = &Issue{
		id: InvalidDesiredStateId,
		mdMsg: `
# Invalid desired-state configuration!

The desired-state string could not be parsed. Each clause must look like:
~~~
name:version:ACTIVATED
name:version:DEACTIVATED?key=value&key2=value2
~~~
Clauses are separated by ';'.

## Things you can try:
- Check the clause named in the error for a missing field
- Use ACTIVATED or DEACTIVATED as the state`,
		sentinel: arkmod.ErrInvalidConfig,
	}

	conflictingDesiredStateIssue = &Issue{
		id: ConflictingDesiredStateId,
		mdMsg: `
# Conflicting desired state!

The same module version is listed as both ACTIVATED and DEACTIVATED.

## Things you can try:
- Keep only one clause per name:version`,
		sentinel: arkmod.ErrConflictingDesiredState,
	}

	multipleActiveVersionsIssue = &Issue{
		id: MultipleActiveVersionsId,
		mdMsg: `
# More than one version desired active!

Only one version of a module name may be ACTIVATED at a time.

## Things you can try:
- Mark all but one version as DEACTIVATED
- Drop the old version from the desired state to have it uninstalled`,
		sentinel: arkmod.ErrMultipleActiveVersions,
	}

	illegalTransitionIssue = &Issue{
		id: IllegalTransitionId,
		mdMsg: `
# Illegal lifecycle transition!

The module cannot move from its current state to the requested one.

## Allowed transitions:
- RESOLVED → ACTIVATED, DEACTIVATED, BROKEN, UNINSTALLED
- ACTIVATED → DEACTIVATED, BROKEN
- DEACTIVATED → ACTIVATED, UNINSTALLED, BROKEN
- BROKEN → UNINSTALLED`,
		sentinel: arkmod.ErrIllegalTransition,
	}

	illegalStateIssue = &Issue{
		id: IllegalStateId,
		mdMsg: `
# Module is busy!

Another operation is in progress on this module, or its state does not
allow the request.

## Things you can try:
- Wait for the running apply to finish and retry`,
		sentinel: arkmod.ErrIllegalState,
	}

	planVerificationFailedIssue = &Issue{
		id: PlanVerificationFailedId,
		mdMsg: `
# Plan verification failed!

Replaying the computed plan against the current snapshot did not produce
the desired state, so the plan was discarded. Nothing was changed.

## Things you can try:
- Run with --verbose to see which modules did not match
- Report the desired-state string and the output of 'arkctl state'`,
		sentinel: arkmod.ErrPlanVerification,
	}

	moduleLoadFailedIssue = &Issue{
		id: ModuleLoadFailedId,
		mdMsg: `
# Failed to load module!

The module's descriptor or namespace could not be materialized. The version
was recorded as BROKEN.

## Things you can try:
- Check the module directory and its descriptor file
- Pass an explicit location: name:version:ACTIVATED?location=/path/to/module
- Raise loader.timeout if the module source is slow
- Apply the same desired state again to retry; the broken version is
  uninstalled and reinstalled
- Remove the broken version by dropping it from the desired state`,
		sentinel: arkmod.ErrModuleLoad,
	}

	dependencyCycleIssue = &Issue{
		id: DependencyCycleId,
		mdMsg: `
# Dependency cycle detected!

Plugins import from each other in a loop, so no boot order exists.

## Things you can try:
- Check the imports of the plugins named in the error
- Move the shared symbols into a separate plugin`,
		sentinel: dag.ErrCycle,
	}

	issues = map[Id]*Issue{
		configLoadFailedIssue.Id():        configLoadFailedIssue,
		moduleNotFoundIssue.Id():          moduleNotFoundIssue,
		duplicateModuleIssue.Id():         duplicateModuleIssue,
		descriptorInvalidIssue.Id():       descriptorInvalidIssue,
		invalidDesiredStateIssue.Id():     invalidDesiredStateIssue,
		conflictingDesiredStateIssue.Id(): conflictingDesiredStateIssue,
		multipleActiveVersionsIssue.Id():  multipleActiveVersionsIssue,
		illegalTransitionIssue.Id():       illegalTransitionIssue,
		illegalStateIssue.Id():            illegalStateIssue,
		planVerificationFailedIssue.Id():  planVerificationFailedIssue,
		moduleLoadFailedIssue.Id():        moduleLoadFailedIssue,
		dependencyCycleIssue.Id():         dependencyCycleIssue,
	}
)

// Values returns every catalog entry ordered by Id.
func Values() []*Issue {
	out := maps.Values(issues)
	slices.SortFunc(out, func(a, b *Issue) int { return int(a.id) - int(b.id) })
	return out
}

func Get(id Id) *Issue {
	return issues[id]
}

// ForError returns the catalog entry whose error family err belongs to.
// Entries are matched in Id order; a verification failure wraps its replay
// cause and must be reported as such.
func ForError(err error) (*Issue, bool) {
	if err == nil {
		return nil, false
	}
	for _, is := range Values() {
		if is.sentinel != nil && errors.Is(err, is.sentinel) {
			return is, true
		}
	}
	return nil, false
}
