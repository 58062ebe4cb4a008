package ir

// RefKey is the object key that carries a reference URI.
const RefKey = "$ref"

// Collections a reference may point at.
const (
	CollectionLiterature   = "literature"
	CollectionAuthors      = "authors"
	CollectionExperiments  = "experiments"
	CollectionJobs         = "jobs"
	CollectionJournals     = "journals"
	CollectionInstitutions = "institutions"
	CollectionConferences  = "conferences"
)

// ValidCollections defines collections known to the resolver.
var ValidCollections = map[string]bool{
	CollectionLiterature:   true,
	CollectionAuthors:      true,
	CollectionExperiments:  true,
	CollectionJobs:         true,
	CollectionJournals:     true,
	CollectionInstitutions: true,
	CollectionConferences:  true,
}
