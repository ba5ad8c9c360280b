package assistant

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

const DefaultModelName = "gemini-2.5-flash"

const systemPrompt = `Você é um assistente financeiro inteligente.
Você pode ajudar com:
- Adicionar despesas e receitas (use: "adicionar despesa [nome]: [valor] reais")
- Marcar transações como pagas (use: "marcar [nome] como pago")
- Excluir transações (use: "excluir transação [nome]" ou "deletar transação [nome]")
- Criar transações recorrentes
- Criar lembretes
- Processar lembretes imediatamente (use: "enviar lembrete agora" ou "processar lembretes")

IMPORTANTE: Ao excluir uma transação, seja cuidadoso e confirme com o usuário se houver múltiplas correspondências.

Seja direto e objetivo.`

// GeminiClient implements LLM over the Gemini API.
type GeminiClient struct {
	client *genai.Client
	model  string
}

func NewGeminiClient(ctx context.Context, apiKey, model string) (*GeminiClient, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      apiKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{APIVersion: "v1beta"},
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	if model == "" {
		model = DefaultModelName
	}
	return &GeminiClient{client: client, model: model}, nil
}

func (g *GeminiClient) Generate(ctx context.Context, message string) (*Reply, error) {
	contents := []*genai.Content{
		{
			Role:  "user",
			Parts: []*genai.Part{{Text: message}},
		},
	}
	cfg := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: systemPrompt}}},
		Temperature:       genai.Ptr[float32](0.7),
		MaxOutputTokens:   1024,
		Tools:             []*genai.Tool{{FunctionDeclarations: functionDeclarations()}},
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, cfg)
	if err != nil {
		return nil, fmt.Errorf("generate content: %w", err)
	}

	reply := &Reply{}
	for _, fc := range resp.FunctionCalls() {
		reply.Calls = append(reply.Calls, FunctionCall{Name: fc.Name, Args: fc.Args})
	}
	if len(reply.Calls) == 0 {
		reply.Text = resp.Text()
	}
	return reply, nil
}

func str(desc string) *genai.Schema {
	return &genai.Schema{Type: genai.TypeString, Description: desc}
}

func num(desc string) *genai.Schema {
	return &genai.Schema{Type: genai.TypeNumber, Description: desc}
}

func functionDeclarations() []*genai.FunctionDeclaration {
	return []*genai.FunctionDeclaration{
		{
			Name:        fnAddTransaction,
			Description: "Adiciona uma nova transação financeira (despesa ou receita)",
			Parameters: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"descricao": str("Descrição da transação (ex: \"Salário\", \"Aluguel\", \"Venda produto\")"),
					"valor":     num("Valor da transação. Use negativo para despesas e positivo para receitas"),
					"categoria": str("Categoria ou centro de custo (ex: \"Salários\", \"Aluguel\", \"Vendas\")"),
					"data":      str("Data da transação no formato YYYY-MM-DD. Se não informada, usa a data atual"),
					"status": {
						Type:        genai.TypeString,
						Enum:        []string{"pago", "pendente"},
						Description: "Status da transação. Padrão: pendente",
					},
				},
				Required: []string{"descricao", "valor", "categoria"},
			},
		},
		{
			Name:        fnMarkPaid,
			Description: "Marca uma transação como paga. Busca por descrição ou código",
			Parameters: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"descricao": str("Descrição ou parte da descrição da transação"),
					"codigo":    str("Código único da transação, se conhecido"),
				},
				Required: []string{"descricao"},
			},
		},
		{
			Name:        fnRecurring,
			Description: "Cria uma transação que se repete mensalmente (ex: salários, aluguel)",
			Parameters: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"descricao":        str("Descrição da transação recorrente"),
					"valor":            num("Valor da transação. Use negativo para despesas e positivo para receitas"),
					"categoria":        str("Categoria ou centro de custo"),
					"quantidade_meses": num("Quantidade de meses. Padrão: 12"),
					"data_inicio":      str("Data de início no formato YYYY-MM-DD. Se não informada, usa o próximo mês"),
				},
				Required: []string{"descricao", "valor", "categoria"},
			},
		},
		{
			Name:        fnCreateReminder,
			Description: "Cria um lembrete para uma data futura",
			Parameters: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"titulo":    str("Título do lembrete"),
					"descricao": str("Descrição detalhada do lembrete"),
					"data":      str("Data do lembrete no formato YYYY-MM-DD"),
				},
				Required: []string{"titulo", "descricao", "data"},
			},
		},
		{
			Name:        fnDeleteTransaction,
			Description: "Exclui uma transação financeira permanentemente",
			Parameters: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"descricao": str("Descrição ou parte da descrição da transação a ser excluída"),
					"codigo":    str("Código único da transação, se conhecido"),
				},
				Required: []string{"descricao"},
			},
		},
		{
			Name:        fnProcessReminders,
			Description: "Processa e envia lembretes de pagamentos imediatamente",
			Parameters:  &genai.Schema{Type: genai.TypeObject},
		},
	}
}
