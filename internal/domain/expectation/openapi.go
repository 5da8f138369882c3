package expectation

// OpenAPIExpectation registers one expectation per operation of an OpenAPI
// document. OperationsAndResponses maps operationId to the status code whose
// example is served; an empty map selects every operation with its first
// documented response.
type OpenAPIExpectation struct {
	SpecURLOrPayload       string
	OperationsAndResponses map[string]string
}
