package verdict

// SystemPrompt frames the model as a collections lawyer.
const SystemPrompt = "Eres un abogado experto en cobro coactivo colombiano."

// BuildPrompt asks for the verdict object in Spanish; text is embedded verbatim.
func BuildPrompt(text string) string {
	return `Eres un abogado experto en cobro coactivo colombiano.
Analiza el siguiente texto y devuelve únicamente un objeto JSON, sin explicaciones ni comentarios.

Debes extraer:
- nombre del deudor
- entidad
- valor total
- fechas (resolución y ejecutoria)
- tipo de título (resolución, sentencia, etc.)

Luego clasifica el título según:
- VERDE = válido y ejecutoriado
- AMARILLO = con inconsistencias menores
- ROJO = no válido

Devuelve **únicamente JSON válido**, con este formato exacto (sin texto adicional):

{
  "nombre": "",
  "entidad": "",
  "valor": "",
  "fecha_resolucion": "",
  "fecha_ejecutoria": "",
  "tipo_titulo": "",
  "semaforo": "",
  "observacion": ""
}

Texto para analizar:
"""
` + text + `
"""
`
}

// TruncateRunes keeps the first limit characters of text.
func TruncateRunes(text string, limit int) string {
	if limit <= 0 {
		return text
	}
	count := 0
	for idx := range text {
		if count == limit {
			return text[:idx]
		}
		count++
	}
	return text
}
