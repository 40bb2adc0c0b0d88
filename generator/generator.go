// Package generator is the annotation processor for the annotations defined
// in the annogen package. Importing it registers the processor under the name
// "annogen".
package generator

import (
	"fmt"

	"github.com/mitchellh/mapstructure"

	"github.com/jhump/annogen"
	"github.com/jhump/annogen/emit"
	"github.com/jhump/annogen/model"
	"github.com/jhump/annogen/processor"
)

// Name is the name under which the processor is registered.
const Name = "annogen"

func init() {
	processor.RegisterProcessor(Name, Process)
}

// Process generates builders, serializers, and facades for the annotated
// elements in the given round. Invalid annotations are reported to the
// environment's Messager and do not stop other elements from being processed.
//
// An error is returned only when an output file cannot be written.
func Process(env *processor.Environment, round processor.Round) error {
	opts, err := decodeOptions(env.Options)
	if err != nil {
		return err
	}

	var elements []*processor.AnnotatedElement
	for _, el := range round.Elements {
		if el.HasAnnotationsFrom(annogen.PackagePath) {
			elements = append(elements, el)
		}
	}
	if len(elements) == 0 {
		return nil
	}

	units, diags := model.Build(elements, opts)
	for _, d := range diags {
		env.Messager.Report(d)
	}
	for _, u := range units {
		cu, err := emit.Emit(u)
		if err != nil {
			first := u.Origins[0]
			env.Messager.Report(processor.DiagnosticFromError(first, first.Pos, err))
			continue
		}
		if err := write(env.Filer, cu); err != nil {
			return err
		}
		env.Logger.Debug("generated", "kind", u.Kind, "target", u.QualifiedName(), "file", cu.FileName)
	}
	return nil
}

func write(filer *processor.Filer, cu *emit.CompilationUnit) error {
	w, err := filer.CreateSource(cu.Package, cu.FileName, cu.Origins...)
	if err != nil {
		return err
	}
	if _, err := w.Write(cu.Content); err != nil {
		_ = w.Close()
		return fmt.Errorf("writing %s: %w", cu.FileName, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("writing %s: %w", cu.FileName, err)
	}
	return nil
}

func decodeOptions(raw map[string]interface{}) (model.Options, error) {
	opts := model.DefaultOptions()
	if len(raw) == 0 {
		return opts, nil
	}
	var md mapstructure.Metadata
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Metadata:         &md,
		Result:           &opts,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return opts, err
	}
	if err := dec.Decode(raw); err != nil {
		return opts, fmt.Errorf("invalid options for %s processor: %w", Name, err)
	}
	if len(md.Unused) > 0 {
		return opts, fmt.Errorf("invalid options for %s processor: unknown keys %v", Name, md.Unused)
	}
	return opts, nil
}
