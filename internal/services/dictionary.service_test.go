package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dictionaryWorkbook() *fakeWorkbook {
	return &fakeWorkbook{sheets: map[string][][]string{
		ColumnMunicipality: {
			{"COD", "DESC MUNICIPIO", "DESC UF"},
			{"355030", "São Paulo", "SP"},
			{"330455", "Rio de Janeiro", "RJ"},
			{"", "ignored", "XX"},
		},
		ColumnCNAE: {
			{"Código", "Descrição"},
			{"4711302", "Comércio varejista"},
		},
		ColumnCBO: {
			{"Código", "Descrição"},
			{" 252105 ", "Administrador"},
		},
		"Sexo Trabalhador": {
			{"Código", "Descrição"},
			{"1", "Masculino"},
			{"2", "Feminino"},
			{"3"},
		},
	}}
}

func TestDictionaryService_Load(t *testing.T) {
	service := NewDictionaryService("dict.xlsx", "N/I", openerFor(dictionaryWorkbook()))

	table, err := service.Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "SP", table.Region("355030"))
	assert.Equal(t, "São Paulo", table.Place(" 355030 "))
	assert.Equal(t, "RJ", table.Region("330455"))
	assert.Equal(t, 2, table.Size(ColumnMunicipality))

	assert.Equal(t, "Comércio varejista", table.Translate(ColumnCNAE, "4711302"))
	assert.Equal(t, "Administrador", table.Translate(ColumnCBO, "252105"))
	assert.Equal(t, "Feminino", table.Translate("Sexo Trabalhador", "2"))
	assert.Equal(t, 2, table.Size("Sexo Trabalhador"))

	assert.Equal(t, "N/I", table.Translate(ColumnCNAE, "0000000"))
	assert.Equal(t, "N/I", table.Region("999999"))
	assert.Equal(t, "N/I", table.Translate("Raça Cor", "1"), "missing sheet falls back to sentinel")
	assert.Zero(t, table.Size("Raça Cor"))
}

func TestDictionaryService_LoadIsCached(t *testing.T) {
	opens := 0
	open := func(path string) (Workbook, error) {
		opens++
		return dictionaryWorkbook(), nil
	}
	service := NewDictionaryService("dict.xlsx", "N/I", open)

	first, err := service.Load(context.Background())
	require.NoError(t, err)
	second, err := service.Load(context.Background())
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, opens)
}

func TestDictionaryService_OpenFailureIsCritical(t *testing.T) {
	open := func(path string) (Workbook, error) {
		return nil, errors.New("no such file")
	}

	table, err := NewDictionaryService("missing.xlsx", "N/I", open).Load(context.Background())

	assert.Error(t, err)
	assert.Nil(t, table)
}

func TestDictionaryService_MalformedMunicipalitySheet(t *testing.T) {
	workbook := &fakeWorkbook{sheets: map[string][][]string{
		ColumnMunicipality: {{"CODIGO", "NOME"}, {"355030", "São Paulo"}},
	}}

	table, err := NewDictionaryService("dict.xlsx", "N/I", openerFor(workbook)).Load(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "N/I", table.Place("355030"))
	assert.Equal(t, "N/I", table.Region("355030"))
}
