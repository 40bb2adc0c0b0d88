// Package processor contains the library used by code that processes
// annotations.
//
// This package defines a function type, Processor, which is implemented by
// things that can process annotations.
//
//    func(env *processor.Environment, round processor.Round) error
//
// Processing is generally expected to validate annotation values and,
// optionally, generate code that is derived from the annotation values.
//
// Problems with annotated sources are reported as Diagnostics through the
// environment's Messager, so that one run can report many of them. Errors
// about a particular source location should be constructed with
// processor.NewErrorWithPosition or processor.Errorf so that users can find
// and fix them. If a processor returns an error, processing is aborted.
//
// The Filer in the environment is used to generate code. It creates files in
// the directory of the package they belong to (or under a configured output
// directory) and records the elements each file was generated from. The
// contents are typically produced with the github.com/jhump/gopoet package.
//
// The remaining APIs and types in this package can be broken into three main
// categories: Processor Registration, Processor Invocation, and Mirrors.
//
// Processor Registration
//
// Processor implementations are registered with this package, by name, using
// the RegisterProcessor function, usually from a package init function.
// Registered processors can later be queried with LookupProcessor and
// AllRegisteredProcessors. The annogen program (included in this repo)
// registers its processors by importing their packages.
//
// Processor Invocation
//
// Key among the types used to invoke processors is processor.Config. This
// struct defines the packages that will be processed, the processors that will
// be invoked, and the output factory (which controls where generated output
// files are actually written).
//
// After a processor.Config is constructed, its Execute method is used to
// actually invoke the configured processors. This involves loading the
// packages to process (parsing and full type analysis) and then extracting
// annotations. Processing happens in rounds: if processors generate files,
// the packages are loaded again and annotated elements found in the generated
// files are handed to the processors in the next round. Each round only
// includes elements that were not seen in an earlier round.
//
// Mirrors
//
// The "mirrors" API consists of two key types:
//
// AnnotationMirror: The mirror is a representation of an annotation as it
// appears in source. It knows the package its qualifier refers to and the
// values given for its members, along with their source positions. Mirrors of
// annotations defined by the annogen package can be reified into the Go
// struct that defines them, which applies defaults and checks member types.
//
// AnnotatedElement: An annotated element is an element in Go source that has
// annotations. This struct provides access to the Go program element via the
// corresponding types.Object as well as references to the element in the
// program AST. It also provides access to AnnotationMirror instances for every
// annotation present on the element.
//
// Processors inspect the annotated elements and corresponding annotation
// mirrors, to validate values and/or to generate code derived from them. The
// entry point for this inspection is the processor.Round, which lists the new
// elements of the round and the processor.Context for every package.
package processor
