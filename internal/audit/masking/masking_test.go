package masking

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMaskSecret(t *testing.T) {
	require.Equal(t, "", MaskSecret("  "))
	require.Equal(t, "****", MaskSecret("abc"))
	require.Equal(t, "****4300", MaskSecret("NL91ABNA0417164300"))
}

func TestMaskFieldsNested(t *testing.T) {
	in := map[string]any{
		"contract_id": "42",
		"persons": []map[string]any{
			{"name": "J. Jansen", "IBAN": "NL91ABNA0417164300", "mandate": "MD-2024-0001"},
		},
	}

	out := MaskFields(in, "iban", "mandate")
	require.Equal(t, "42", out["contract_id"])

	persons := out["persons"].([]any)
	person := persons[0].(map[string]any)
	require.Equal(t, "J. Jansen", person["name"])
	require.Equal(t, "****4300", person["IBAN"])
	require.Equal(t, "****0001", person["mandate"])

	original := in["persons"].([]map[string]any)[0]
	require.Equal(t, "NL91ABNA0417164300", original["IBAN"])
}
