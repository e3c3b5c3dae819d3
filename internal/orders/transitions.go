package orders

// Party identifies which side of the marketplace may perform a transition.
type Party string

const (
	PartyBrand    Party = "BRAND"
	PartySupplier Party = "SUPPLIER"
)

// Transition is one edge of the lifecycle graph. The same table drives both
// the mutation path (UpdateStatus) and the query path
// (AvailableTransitions), so the two can never diverge.
type Transition struct {
	Target Status
	Actor  Party
	Guard  func(*Order) bool
	Label  string
}

func materialsProvided(o *Order) bool   { return o.MaterialsProvided }
func materialsBySupplier(o *Order) bool { return !o.MaterialsProvided }
func isReworkChild(o *Order) bool       { return o.Origin == OriginRework }

var transitionTable = map[Status][]Transition{
	StatusAccepted: {
		{Target: StatusOutboundPrep, Actor: PartyBrand, Guard: materialsProvided, Label: "Preparar envio de materiais"},
		{Target: StatusProductionQueue, Actor: PartySupplier, Guard: materialsBySupplier, Label: "Entrar na fila de produção"},
	},
	StatusOutboundPrep: {
		{Target: StatusInTransitToSupplier, Actor: PartyBrand, Label: "Despachar materiais para a facção"},
	},
	StatusInTransitToSupplier: {
		{Target: StatusInboundPrep, Actor: PartySupplier, Label: "Receber materiais"},
	},
	StatusInboundPrep: {
		{Target: StatusInProduction, Actor: PartySupplier, Label: "Iniciar produção"},
	},
	StatusProductionQueue: {
		{Target: StatusInProduction, Actor: PartySupplier, Label: "Iniciar produção"},
	},
	StatusInProduction: {
		{Target: StatusReady, Actor: PartySupplier, Label: "Produção concluída"},
	},
	StatusReady: {
		{Target: StatusInTransitToBrand, Actor: PartySupplier, Label: "Despachar para a marca"},
	},
	StatusInTransitToBrand: {
		{Target: StatusInReview, Actor: PartyBrand, Label: "Receber e iniciar revisão"},
	},
	// A rework child re-enters the flow at the acceptance point. The guard
	// keeps the parent, parked in the same status, from advancing here.
	StatusAwaitingRework: {
		{Target: StatusAccepted, Actor: PartySupplier, Guard: isReworkChild, Label: "Aceitar retrabalho"},
	},
}

var statusLabels = map[Status]string{
	StatusLaunched:            "Lançado pela marca",
	StatusAccepted:            "Aceito pela facção",
	StatusOutboundPrep:        "Em preparação de saída (marca)",
	StatusInTransitToSupplier: "Em trânsito para a facção",
	StatusInboundPrep:         "Em preparação de entrada (facção)",
	StatusProductionQueue:     "Fila de produção",
	StatusInProduction:        "Em produção",
	StatusReady:               "Pronto",
	StatusInTransitToBrand:    "Em trânsito para a marca",
	StatusInReview:            "Em revisão",
	StatusFinalized:           "Finalizado",
	StatusPartiallyApproved:   "Parcialmente aprovado",
	StatusRejected:            "Reprovado",
	StatusAwaitingRework:      "Aguardando retrabalho",
	StatusOpenToMarket:        "Disponível para outras facções",
	StatusCancelled:           "Cancelado",
}

// StatusLabel returns the human label for a status.
func StatusLabel(s Status) string {
	if label, ok := statusLabels[s]; ok {
		return label
	}
	return string(s)
}

// transitionsFrom lists every table edge leaving the order's current status,
// including brand cancellation of any non-terminal order.
func transitionsFrom(o *Order) []Transition {
	rows := append([]Transition(nil), transitionTable[o.Status]...)
	if !o.Status.IsTerminal() {
		rows = append(rows, Transition{
			Target: StatusCancelled,
			Actor:  PartyBrand,
			Label:  "Cancelar pedido",
		})
	}
	return rows
}

// legalFor filters the outgoing edges down to those the party may take right
// now (guards evaluated against the order snapshot).
func legalFor(o *Order, p Party) []Transition {
	var out []Transition
	for _, t := range transitionsFrom(o) {
		if t.Actor != p {
			continue
		}
		if t.Guard != nil && !t.Guard(o) {
			continue
		}
		out = append(out, t)
	}
	return out
}

// waitingParty derives whose turn it is when the calling actor has no legal
// transition, with a human label. Returns empty values for terminal states.
func waitingParty(o *Order) (Party, string) {
	switch o.Status {
	case StatusLaunched, StatusOpenToMarket:
		return PartySupplier, "Aguardando aceite da facção"
	case StatusInReview:
		return PartyBrand, "Aguardando revisão de qualidade da marca"
	case StatusRejected, StatusPartiallyApproved:
		return PartyBrand, "Aguardando decisão de retrabalho da marca"
	case StatusAwaitingRework:
		if o.Origin == OriginRework {
			return PartySupplier, "Aguardando aceite do retrabalho"
		}
		return PartySupplier, "Aguardando conclusão do retrabalho"
	}
	for _, p := range []Party{PartyBrand, PartySupplier} {
		for _, t := range transitionTable[o.Status] {
			if t.Actor != p {
				continue
			}
			if t.Guard != nil && !t.Guard(o) {
				continue
			}
			if p == PartyBrand {
				return PartyBrand, "Aguardando ação da marca"
			}
			return PartySupplier, "Aguardando ação da facção"
		}
	}
	return "", ""
}
