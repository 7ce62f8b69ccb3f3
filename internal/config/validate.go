// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of carbond.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package config

import (
	"encoding/json"

	"github.com/carbond/carbond/pkg/log"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Validate compiles schema and validates instance against it, aborting the
// process on any failure. Kept in the shape of the teacher's
// internal/config.Validate helper, generalized to take a schema/instance
// pair per subsystem instead of one global schema.
func Validate(schema string, instance json.RawMessage) {
	sch, err := jsonschema.CompileString("schema.json", schema)
	if err != nil {
		log.Abortf("%#v", err)
	}

	var v any
	if err := json.Unmarshal(instance, &v); err != nil {
		log.Abortf("%v", err)
	}

	if err := sch.Validate(v); err != nil {
		log.Abortf("%#v", err)
	}
}
