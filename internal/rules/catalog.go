package rules

import (
	"sort"

	"github.com/roach88/marcbridge/internal/ir"
	"github.com/roach88/marcbridge/internal/registry"
)

// Handler is a named pair of conversion functions. A handler may support
// only one direction; a rule naming it in the other is rejected by Build.
type Handler struct {
	Forward registry.ForwardFunc
	Reverse registry.ReverseFunc
}

// finalizerFunc binds a finalizer to the rule set that lists it.
type finalizerFunc func(spec ir.RuleSetSpec) registry.Finalizer

var handlers = map[string]Handler{
	// builtin
	"control": {Forward: controlForward, Reverse: controlReverse},
	"value":   {Forward: valueForward, Reverse: valueReverse},
	"int":     {Forward: intForward, Reverse: intReverse},
	"date":    {Forward: dateForward, Reverse: valueReverse},
	"list":    {Forward: listForward, Reverse: listReverse},
	"object":  {Forward: objectForward, Reverse: objectReverse},
	"flag":    {Forward: flagForward, Reverse: flagReverse},
	"ignore":  {Forward: ignoreForward, Reverse: ignoreReverse},

	// literature
	"author":           {Forward: authorForward},
	"authors":          {Reverse: authorsReverse},
	"publication_info": {Forward: publicationInfoForward, Reverse: publicationInfoReverse},
	"arxiv_eprint":     {Forward: arxivEprintForward, Reverse: arxivEprintReverse},
	"collection":       {Forward: collectionForward},
	"document_type":    {Reverse: documentTypeReverse},
	"thesis_info":      {Forward: thesisInfoForward, Reverse: thesisInfoReverse},

	// authors
	"author_name":  {Forward: authorNameForward, Reverse: authorNameReverse},
	"name_variant": {Forward: nameVariantForward},
	"position":     {Forward: positionForward, Reverse: positionReverse},

	// institutions, conferences
	"institution_header": {Forward: institutionHeaderForward, Reverse: institutionHeaderReverse},
	"conference_header":  {Forward: conferenceHeaderForward, Reverse: conferenceHeaderReverse},
}

var finalizers = map[string]finalizerFunc{
	"schema":                schemaFinalizer,
	"default_document_type": defaultDocumentTypeFinalizer,
	"hep_marker":            hepMarkerFinalizer,
}

// LookupHandler returns the handler registered under name.
func LookupHandler(name string) (Handler, bool) {
	h, ok := handlers[name]
	return h, ok
}

// HandlerNames returns every handler name, sorted.
func HandlerNames() []string {
	names := make([]string, 0, len(handlers))
	for name := range handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// FinalizerNames returns every finalizer name, sorted.
func FinalizerNames() []string {
	names := make([]string, 0, len(finalizers))
	for name := range finalizers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
