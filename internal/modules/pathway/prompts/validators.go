package prompts

import "fmt"

type Validator func(Input) error

func requireInteractions(in Input) error {
	if len(in.Interactions) == 0 {
		return fmt.Errorf("no interactions provided")
	}
	return nil
}

func requireRootCategories(in Input) error {
	if len(in.RootCategories) == 0 {
		return fmt.Errorf("no root categories provided")
	}
	return nil
}

func requirePathwayName(in Input) error {
	if in.PathwayName == "" {
		return fmt.Errorf("no pathway name provided")
	}
	return nil
}

func requireClusterMembers(in Input) error {
	if len(in.ClusterMembers) < 2 {
		return fmt.Errorf("synonym confirmation needs at least two members")
	}
	return nil
}

func requireCandidateNames(in Input) error {
	if len(in.CandidateNames) == 0 {
		return fmt.Errorf("no candidate vocabulary provided")
	}
	return nil
}

func requireSiblingPair(in Input) error {
	if in.ParentName == "" || in.MainChildName == "" {
		return fmt.Errorf("sibling expansion needs parent and main child names")
	}
	return nil
}
