package openapi_test

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sophialabs/expectmock/internal/domain/expectation"
	"github.com/sophialabs/expectmock/internal/infrastructure/outbound/openapi"
	"github.com/sophialabs/expectmock/internal/testutil"
)

const petstore = `openapi: 3.0.3
info:
  title: Petstore
  version: 1.0.0
servers:
  - url: http://petstore.local/v1
paths:
  /pets:
    get:
      operationId: listPets
      parameters:
        - name: limit
          in: query
          required: false
          schema:
            type: integer
            maximum: 100
        - name: X-Tenant
          in: header
          required: true
          schema:
            type: string
      responses:
        "200":
          description: A list of pets
          content:
            application/json:
              example:
                - id: 1
                  name: Rex
        default:
          description: error
    post:
      operationId: createPet
      requestBody:
        required: true
        content:
          application/json:
            schema:
              type: object
              required: [name]
              properties:
                name:
                  type: string
      responses:
        "201":
          description: Created
          content:
            application/json:
              schema:
                type: object
                example:
                  id: 2
        "400":
          description: Bad request
          content:
            text/plain:
              examples:
                missing:
                  value: name is required
  /pets/{petId}:
    parameters:
      - name: petId
        in: path
        required: true
        schema:
          type: integer
    get:
      operationId: showPet
      responses:
        "200":
          description: A pet
`

func resolver() *openapi.Resolver {
	return openapi.NewResolver(&testutil.NoopLogger{})
}

func TestResolver_Resolve(t *testing.T) {
	matchers, err := resolver().Resolve(context.Background(), &expectation.OpenAPIDefinition{SpecURLOrPayload: petstore})
	require.NoError(t, err)
	require.Len(t, matchers, 3)

	list := matchers[0]
	assert.Equal(t, "GET", list.Method.Value)
	assert.Equal(t, "/v1/pets", list.Path.Value)
	require.Len(t, list.QueryStringParameters, 1)
	limit := list.QueryStringParameters[0]
	assert.Equal(t, "limit", limit.Name.Value)
	assert.True(t, limit.Values[0].Optional)
	assert.JSONEq(t, `{"type":"integer","maximum":100}`, string(limit.Values[0].Schema))
	require.Len(t, list.Headers, 1)
	assert.False(t, list.Headers[0].Values[0].Optional)
	assert.Nil(t, list.Body)

	create := matchers[1]
	assert.Equal(t, "POST", create.Method.Value)
	require.NotNil(t, create.Body)
	assert.Equal(t, expectation.BodyJSONSchema, create.Body.Type)
	assert.Contains(t, create.Body.JSONSchema, `"required":["name"]`)

	show := matchers[2]
	assert.Equal(t, "/v1/pets/{petId}", show.Path.Value)
	require.Len(t, show.PathParameters, 1)
	assert.Equal(t, "petId", show.PathParameters[0].Name.Value)
	assert.False(t, show.PathParameters[0].Values[0].Optional)
}

func TestResolver_ResolveOperation(t *testing.T) {
	matchers, err := resolver().Resolve(context.Background(), &expectation.OpenAPIDefinition{SpecURLOrPayload: petstore, OperationID: "showPet"})
	require.NoError(t, err)
	require.Len(t, matchers, 1)
	assert.Equal(t, "/v1/pets/{petId}", matchers[0].Path.Value)

	_, err = resolver().Resolve(context.Background(), &expectation.OpenAPIDefinition{SpecURLOrPayload: petstore, OperationID: "deletePet"})
	assert.True(t, errors.Is(err, openapi.ErrOperationNotFound))
}

func TestResolver_Expand(t *testing.T) {
	exps, err := resolver().Expand(context.Background(), &expectation.OpenAPIExpectation{SpecURLOrPayload: petstore})
	require.NoError(t, err)
	require.Len(t, exps, 3)

	list := exps[0].Action.(*expectation.ResponseAction).Response
	assert.Equal(t, 200, list.StatusCode)
	assert.JSONEq(t, `[{"id":1,"name":"Rex"}]`, string(list.Body))
	assert.Equal(t, "application/json", list.Headers.First("Content-Type", true))
	assert.True(t, exps[0].Times.Unlimited)

	created := exps[1].Action.(*expectation.ResponseAction).Response
	assert.Equal(t, 201, created.StatusCode)
	assert.JSONEq(t, `{"id":2}`, string(created.Body))

	show := exps[2].Action.(*expectation.ResponseAction).Response
	assert.Equal(t, 200, show.StatusCode)
	assert.Empty(t, show.Body)
}

func TestResolver_ExpandSelectedResponses(t *testing.T) {
	exps, err := resolver().Expand(context.Background(), &expectation.OpenAPIExpectation{
		SpecURLOrPayload:       petstore,
		OperationsAndResponses: map[string]string{"createPet": "400"},
	})
	require.NoError(t, err)
	require.Len(t, exps, 1)

	resp := exps[0].Action.(*expectation.ResponseAction).Response
	assert.Equal(t, 400, resp.StatusCode)
	assert.Equal(t, "name is required", string(resp.Body))
	assert.Equal(t, "text/plain", resp.Headers.First("Content-Type", true))

	_, err = resolver().Expand(context.Background(), &expectation.OpenAPIExpectation{
		SpecURLOrPayload:       petstore,
		OperationsAndResponses: map[string]string{"createPet": "418"},
	})
	assert.ErrorContains(t, err, `no response documented for status "418"`)
}

func TestLoad_Sources(t *testing.T) {
	path := filepath.Join(t.TempDir(), "petstore.yaml")
	require.NoError(t, os.WriteFile(path, []byte(petstore), 0o644))

	doc, err := openapi.Load(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "Petstore", doc.Info.Title)

	asJSON, err := json.Marshal(doc)
	require.NoError(t, err)
	doc, err = openapi.Load(context.Background(), string(asJSON))
	require.NoError(t, err)
	assert.Equal(t, "Petstore", doc.Info.Title)

	_, err = openapi.Load(context.Background(), "")
	assert.Error(t, err)
	_, err = openapi.Load(context.Background(), filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
