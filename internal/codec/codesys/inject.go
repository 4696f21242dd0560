package codesys

import (
	"github.com/google/uuid"

	"github.com/plc-visualizer/plcforge/internal/codec"
	"github.com/plc-visualizer/plcforge/internal/faults"
	"github.com/plc-visualizer/plcforge/internal/models"
)

// Inject adds the POUs and variable lists of additions to a template
// .project under its application. Objects already in the template keep
// their bytes; only the project tree is rewritten. Additions without a GUID
// get a fresh one.
func Inject(template []byte, additions *models.Project, opts codec.Options) ([]byte, error) {
	a, err := ReadArchive(template, opts.Limits)
	if err != nil {
		return nil, err
	}
	app := a.Application()
	if app == nil {
		return nil, faults.SchemaViolation("ProjectTree", "template has no Application node")
	}
	parent := uuid.MustParse(app.GUID)
	fresh := func(stored, _, name string) (uuid.UUID, error) {
		if stored != "" {
			return objectGUID(stored, "", name)
		}
		return uuid.NewRandom()
	}
	if err := addProject(a, additions, parent, fresh); err != nil {
		return nil, err
	}
	return a.Bytes()
}
