// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

package web

import (
	"bytes"
	"encoding/json"
	"sort"

	"github.com/invopop/jsonschema"
	jschema "github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/samber/oops"
)

// Request bodies. Extra properties are tolerated so older clients that send
// more than the operation needs keep working.

// CredentialsRequest is the body of /register and /login.
type CredentialsRequest struct {
	Username string `json:"username" jsonschema:"maxLength=320"`
	Password string `json:"password" jsonschema:"maxLength=1024"`
}

// AccessKeyRequest is the body of /confirm_email.
type AccessKeyRequest struct {
	AccessKey string `json:"accessKey" jsonschema:"maxLength=256"`
}

// UsernameRequest is the body of /reset_password and /resend_confirmation.
type UsernameRequest struct {
	Username string `json:"username" jsonschema:"maxLength=320"`
}

// SetNewPasswordRequest is the body of /set_new_password.
type SetNewPasswordRequest struct {
	Username  string `json:"username" jsonschema:"maxLength=320"`
	AccessKey string `json:"accessKey" jsonschema:"maxLength=256"`
	Password  string `json:"password" jsonschema:"maxLength=1024"`
}

// UpdatePasswordRequest is the body of /update_password.
type UpdatePasswordRequest struct {
	Username    string `json:"username" jsonschema:"maxLength=320"`
	Password    string `json:"password" jsonschema:"maxLength=1024"`
	NewPassword string `json:"newPassword" jsonschema:"maxLength=1024"`
}

// SessionRequest is the body of /logout and /verify_session.
type SessionRequest struct {
	Username string `json:"username" jsonschema:"maxLength=320"`
	AuthKey  string `json:"authKey" jsonschema:"maxLength=256"`
}

// requestTypes maps each operation to the body it accepts.
var requestTypes = map[string]any{
	OpRegister:           &CredentialsRequest{},
	OpConfirmEmail:       &AccessKeyRequest{},
	OpResetPassword:      &UsernameRequest{},
	OpSetNewPassword:     &SetNewPasswordRequest{},
	OpUpdatePassword:     &UpdatePasswordRequest{},
	OpLogin:              &CredentialsRequest{},
	OpLogout:             &SessionRequest{},
	OpVerifySession:      &SessionRequest{},
	OpResendConfirmation: &UsernameRequest{},
}

// SchemaID returns the $id of the request schema for operation.
func SchemaID(operation string) string {
	return "https://keyward.dev/schemas/" + operation + ".request.schema.json"
}

// Operations lists the operations that accept a JSON body, sorted.
func Operations() []string {
	ops := make([]string, 0, len(requestTypes))
	for op := range requestTypes {
		ops = append(ops, op)
	}
	sort.Strings(ops)
	return ops
}

// GenerateSchema reflects the JSON Schema of operation's request body.
func GenerateSchema(operation string) ([]byte, error) {
	v, ok := requestTypes[operation]
	if !ok {
		return nil, oops.Code("SCHEMA_UNKNOWN_OPERATION").With("operation", operation).Errorf("no request schema")
	}

	r := jsonschema.Reflector{
		DoNotReference:            true,
		AllowAdditionalProperties: true,
	}
	schema := r.Reflect(v)
	schema.ID = jsonschema.ID(SchemaID(operation))
	schema.Title = "Keyward " + operation + " request"

	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return nil, oops.Code("SCHEMA_MARSHAL_FAILED").With("operation", operation).Wrap(err)
	}
	return data, nil
}

// validator holds one compiled schema per operation.
type validator struct {
	schemas map[string]*jschema.Schema
}

func newValidator() (*validator, error) {
	c := jschema.NewCompiler()
	for op := range requestTypes {
		raw, err := GenerateSchema(op)
		if err != nil {
			return nil, err
		}
		doc, err := jschema.UnmarshalJSON(bytes.NewReader(raw))
		if err != nil {
			return nil, oops.Code("SCHEMA_COMPILE_FAILED").With("operation", op).Wrap(err)
		}
		if err := c.AddResource(SchemaID(op), doc); err != nil {
			return nil, oops.Code("SCHEMA_COMPILE_FAILED").With("operation", op).Wrap(err)
		}
	}

	v := &validator{schemas: make(map[string]*jschema.Schema, len(requestTypes))}
	for op := range requestTypes {
		sch, err := c.Compile(SchemaID(op))
		if err != nil {
			return nil, oops.Code("SCHEMA_COMPILE_FAILED").With("operation", op).Wrap(err)
		}
		v.schemas[op] = sch
	}
	return v, nil
}

// validate checks body against the schema of operation.
func (v *validator) validate(operation string, body []byte) error {
	sch, ok := v.schemas[operation]
	if !ok {
		return oops.Code("SCHEMA_UNKNOWN_OPERATION").With("operation", operation).Errorf("no request schema")
	}
	doc, err := jschema.UnmarshalJSON(bytes.NewReader(body))
	if err != nil {
		return oops.Code("REQUEST_MALFORMED").With("operation", operation).Wrap(err)
	}
	if err := sch.Validate(doc); err != nil {
		return oops.Code("REQUEST_SCHEMA_MISMATCH").With("operation", operation).Wrap(err)
	}
	return nil
}
