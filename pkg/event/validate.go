package event

// Validate performs the structural checks that need no store lookup:
// required fields, closed enums, per-type grounding and frame rules.
// Lookup-dependent checks (reference targets, groundedness) belong to the
// store and the grounding verifier.
func Validate(e *Event) ValidationErrors {
	var errs ValidationErrors

	if e == nil {
		return ValidationErrors{{Code: CodeStructural, Message: "event is nil"}}
	}
	if e.ID == "" {
		errs = append(errs, ValidationError{Code: CodeStructural, Field: "id", Message: "required"})
	}
	if e.Actor == "" {
		errs = append(errs, ValidationError{Code: CodeStructural, Field: "actor", Message: "required"})
	}
	if e.Timestamp.IsZero() {
		errs = append(errs, ValidationError{Code: CodeStructural, Field: "timestamp", Message: "required"})
	}
	if e.Category == "" {
		errs = append(errs, ValidationError{Code: CodeStructural, Field: "category", Message: "required"})
	}
	if !e.EpistemicType.IsValid() {
		errs = append(errs, ValidationError{
			Code:    CodeRule1,
			Field:   "epistemicType",
			Message: "must be one of given, meant, derived_value",
		})
		return errs
	}

	if e.Grounding != nil {
		for i, ref := range e.Grounding.References {
			if ref.EventID == "" {
				errs = append(errs, ValidationError{Code: CodeStructural, Field: "grounding.references", Message: "reference missing eventId"})
			}
			if !ref.Kind.IsValid() {
				errs = append(errs, ValidationError{Code: CodeStructural, Field: "grounding.references", Message: "unknown reference kind " + string(e.Grounding.References[i].Kind)})
			}
		}
	}

	switch e.EpistemicType {
	case Given:
		// A given event may carry references (e.g. to external sources),
		// but never semantic ones: fact must not lean on interpretation.
		if e.Grounding != nil {
			for _, ref := range e.Grounding.References {
				if ref.Kind == KindSemantic {
					errs = append(errs, ValidationError{
						Code:    CodeRule2,
						Field:   "grounding.references",
						Message: "given events cannot carry semantic references",
					})
					break
				}
			}
		}
	case Meant:
		if e.Frame == nil || e.Frame.Claim == "" {
			errs = append(errs, ValidationError{Code: CodeStructural, Field: "frame", Message: "meant events require a frame with a claim"})
		}
		if e.Grounding == nil || len(e.Grounding.References) == 0 {
			errs = append(errs, ValidationError{Code: CodeRule7, Field: "grounding", Message: "meant events require at least one grounding reference"})
		}
	case DerivedValue:
		if e.Grounding == nil || len(e.Grounding.References) == 0 {
			errs = append(errs, ValidationError{Code: CodeRule7, Field: "grounding", Message: "derived values require at least one grounding reference"})
		} else {
			if !e.HasComputationalReference() {
				errs = append(errs, ValidationError{Code: CodeRule8, Field: "grounding.references", Message: "derived values require a computational reference"})
			}
			if e.Grounding.Derivation == nil || e.Grounding.Derivation.Operator == "" {
				errs = append(errs, ValidationError{Code: CodeRule8, Field: "grounding.derivation", Message: "derived values require a derivation descriptor"})
			}
		}
	}

	if e.Supersession != nil {
		if e.Supersession.Supersedes == "" {
			errs = append(errs, ValidationError{Code: CodeStructural, Field: "supersession.supersedes", Message: "required"})
		}
		if e.Supersession.Supersedes == e.ID {
			errs = append(errs, ValidationError{Code: CodeRule3, Field: "supersession.supersedes", Message: "event cannot supersede itself"})
		}
	}

	for _, p := range e.Parents {
		if p == e.ID {
			errs = append(errs, ValidationError{Code: CodeStructural, Field: "parents", Message: "event cannot be its own parent"})
		}
	}

	return errs
}
