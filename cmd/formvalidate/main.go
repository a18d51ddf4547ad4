// formvalidate validates Form.io submissions against their form definitions.
//
// Usage:
//
//	# Validate a submission file against a form on disk
//	formvalidate validate forms/contact.json --data submission.json
//
//	# Read the submission from stdin
//	cat submission.json | formvalidate validate https://example.com/form/contact
//
//	# Answer the form interactively, then validate the answers
//	formvalidate prompt forms/contact.yaml
//
//	# Serve the HTTP API
//	formvalidate serve --config formvalidate.yaml
package main

func main() {
	Execute()
}
